package handlers

import (
	"errors"
	"net/http"

	"facegate/internal/liveness"
	"facegate/internal/session"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type livenessCompleteRequest struct {
	Nonce  string   `json:"nonce"`
	Frames []string `json:"frames"`
}

// LivenessChallenge issues a fresh challenge for the session, discarding
// any previous one.
func (h *APIHandler) LivenessChallenge(c *gin.Context) {
	sess := session.FromContext(c)

	challenge, err := h.liveness.IssueChallenge(sess)
	if err != nil {
		log.WithError(err).Error("Failed to issue liveness challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could not issue challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"nonce":   challenge.Nonce,
		"actions": challenge.Actions[:],
	})
}

// LivenessComplete validates a burst of frames against the session's
// challenge. Protocol violations (bad nonce, expired window, bad burst
// size) are client errors; failed signal checks are soft failures so the
// client can retry within the window.
func (h *APIHandler) LivenessComplete(c *gin.Context) {
	sess := session.FromContext(c)

	var req livenessCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "nonce and frames are required"})
		return
	}

	frames := make([][]byte, 0, len(req.Frames))
	for _, b64 := range req.Frames {
		raw, err := decodeImage(b64)
		if err != nil {
			// Undecodable frames are dropped, same as decode failures
			// further down the pipeline.
			continue
		}
		frames = append(frames, raw)
	}

	err := h.liveness.CompleteChallenge(sess, req.Nonce, frames)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	switch {
	case errors.Is(err, liveness.ErrNonceInvalid),
		errors.Is(err, liveness.ErrChallengeExpired),
		errors.Is(err, liveness.ErrTooManyFrames),
		errors.Is(err, liveness.ErrInsufficientFrames):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, liveness.ErrInsufficientMotion),
		errors.Is(err, liveness.ErrExcessGlare),
		errors.Is(err, liveness.ErrBlurred):
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
	default:
		log.WithError(err).Error("Liveness completion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "frame scoring failed"})
	}
}
