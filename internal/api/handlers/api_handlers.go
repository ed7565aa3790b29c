package handlers

import (
	"encoding/base64"
	"errors"
	"image"
	"net/http"
	"strings"

	"facegate/config"
	"facegate/internal/audit"
	"facegate/internal/content"
	"facegate/internal/core/models"
	"facegate/internal/db/repository"
	"facegate/internal/gate"
	"facegate/internal/liveness"
	"facegate/internal/session"
	"facegate/internal/sse"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// APIHandler serves the JSON boundary of the gate.
type APIHandler struct {
	cfg          *config.Config
	orchestrator *gate.Orchestrator
	liveness     *liveness.Service
	repo         repository.Repository
	audit        *audit.Recorder
	catalog      *content.Catalog
	hub          *sse.Hub
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(cfg *config.Config, orch *gate.Orchestrator, live *liveness.Service,
	repo repository.Repository, rec *audit.Recorder, catalog *content.Catalog, hub *sse.Hub) *APIHandler {
	return &APIHandler{
		cfg:          cfg,
		orchestrator: orch,
		liveness:     live,
		repo:         repo,
		audit:        rec,
		catalog:      catalog,
		hub:          hub,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Gate endpoints
	router.POST("/verify", h.Verify)
	router.POST("/verify_enroll", h.VerifyEnroll)
	router.POST("/enroll", h.Enroll)
	router.POST("/admin/login", h.AdminLogin)
	router.POST("/retrain", h.Retrain)
	router.POST("/logout", h.Logout)

	// Liveness endpoints
	router.POST("/liveness/challenge", h.LivenessChallenge)
	router.POST("/liveness/complete", h.LivenessComplete)

	// Research catalog
	router.GET("/research", h.ResearchList)
	router.GET("/research/:slug", h.ResearchDetail)

	// Diagnostics
	router.GET("/model/status", h.ModelStatus)
	router.GET("/events", h.Events)
	router.GET("/events/stream", h.EventStream)
	router.GET("/system/status", h.SystemStatus)

	// Session introspection
	router.GET("/session", h.SessionInfo)
}

type verifyRequest struct {
	ImageB64 string `json:"image_b64"`
}

type enrollRequest struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	ImageB64 string `json:"image_b64"`
}

type adminLoginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// boxJSON is the wire form of a face bounding box.
type boxJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func boxOf(r *image.Rectangle) *boxJSON {
	if r == nil {
		return nil
	}
	return &boxJSON{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// decodeImage decodes a base64 image payload, tolerating a data-URL prefix.
func decodeImage(b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if idx := strings.Index(b64, ","); idx >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[idx+1:]
	}
	return base64.StdEncoding.DecodeString(b64)
}

// Verify handles facial login. Requires a fresh liveness pass; the pass is
// consumed only on a successful match.
func (h *APIHandler) Verify(c *gin.Context) {
	sess := session.FromContext(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageB64) == "" {
		h.audit.Record(audit.StatusAPIError, "", nil, "verify: image missing")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "image is required"})
		return
	}

	img, err := decodeImage(req.ImageB64)
	if err != nil {
		h.audit.Record(audit.StatusAPIError, "", nil, "verify: invalid base64 image")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid image"})
		return
	}

	result, err := h.orchestrator.AuthenticateForLogin(sess, img)
	if err != nil {
		if errors.Is(err, gate.ErrLivenessRequired) {
			c.JSON(http.StatusConflict, gin.H{
				"ok":               false,
				"error":            "complete the liveness check before login",
				"require_liveness": true,
			})
			return
		}
		log.WithError(err).Error("Login verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "image processing failed"})
		return
	}

	if !result.Match {
		c.JSON(http.StatusOK, gin.H{"ok": true, "match": false, "reason": result.Reason, "bbox": boxOf(result.Box)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"match":       true,
		"name":        result.Name,
		"level":       result.Level,
		"level_label": models.LevelLabel(result.Level),
		"distance":    result.Distance,
		"bbox":        boxOf(result.Box),
	})
}

// VerifyEnroll handles the enrollment gate: a recognized level-3 identity
// passes directly, everything else needs the admin credential check.
func (h *APIHandler) VerifyEnroll(c *gin.Context) {
	sess := session.FromContext(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageB64) == "" {
		h.audit.Record(audit.StatusAPIError, "", nil, "verify_enroll: image missing")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "image is required"})
		return
	}

	img, err := decodeImage(req.ImageB64)
	if err != nil {
		h.audit.Record(audit.StatusAPIError, "", nil, "verify_enroll: invalid base64 image")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid image"})
		return
	}

	result, err := h.orchestrator.VerifyEnrollGate(sess, img)
	if err != nil {
		log.WithError(err).Error("Enrollment gate verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "image processing failed"})
		return
	}

	if !result.Match {
		c.JSON(http.StatusOK, gin.H{
			"ok": true, "match": false, "reason": result.Reason,
			"require_admin": result.RequireAdmin, "bbox": boxOf(result.Box),
		})
		return
	}

	resp := gin.H{
		"ok":    true,
		"match": true,
		"is_n3": result.IsLevel3,
		"name":  result.Name,
		"level": result.Level,
		"bbox":  boxOf(result.Box),
	}
	if result.RequireAdmin {
		resp["require_admin"] = true
	}
	c.JSON(http.StatusOK, resp)
}

// Enroll creates or updates an identity. Level-3 sessions and admin
// overrides only.
func (h *APIHandler) Enroll(c *gin.Context) {
	sess := session.FromContext(c)

	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.audit.Record(audit.StatusAPIError, "", nil, "enroll: malformed request body")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name, level and image are required"})
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ImageB64) == "" {
		h.audit.Record(audit.StatusAPIError, "", nil, "enroll: name or image missing")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name and image are required"})
		return
	}

	img, err := decodeImage(req.ImageB64)
	if err != nil {
		h.audit.Record(audit.StatusAPIError, "", nil, "enroll: invalid base64 image")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid image"})
		return
	}

	result, err := h.orchestrator.EnrollOrUpdate(sess, req.Name, req.Level, img)
	if err != nil {
		var authzErr *gate.AuthorizationError
		var valErr *gate.ValidationError
		switch {
		case errors.As(err, &authzErr):
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": authzErr.Msg})
		case errors.As(err, &valErr):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": valErr.Msg})
		default:
			// Degrade processing failures to a soft error; the face-not-
			// detected case is the common one.
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		}
		return
	}

	if result.Updated {
		c.JSON(http.StatusOK, gin.H{
			"ok": true, "updated_only": true, "name": result.Name, "level": result.Level,
			"note": "level and sample updated for an already enrolled face",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "name": result.Name, "level": result.Level,
		"note": "new identity enrolled"})
}

// AdminLogin checks the fixed credential pair and sets the admin override.
func (h *APIHandler) AdminLogin(c *gin.Context) {
	sess := session.FromContext(c)

	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "user and password are required"})
		return
	}

	if !h.orchestrator.AdminLogin(sess, strings.TrimSpace(req.User), strings.TrimSpace(req.Password)) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Retrain triggers a full model rebuild from the registry.
func (h *APIHandler) Retrain(c *gin.Context) {
	if err := h.orchestrator.Retrain(); err != nil {
		if errors.Is(err, gate.ErrNoTrainingData) {
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "no training data available"})
			return
		}
		h.audit.Record(audit.StatusAPIError, "", nil, "retrain: "+err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Logout clears the server-side session.
func (h *APIHandler) Logout(c *gin.Context) {
	sess := session.FromContext(c)
	h.orchestrator.Logout(sess)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ModelStatus returns a diagnostic snapshot of the recognition state.
func (h *APIHandler) ModelStatus(c *gin.Context) {
	status := h.orchestrator.Status()
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"users_count": status.Identities,
		"trained":     status.Trained,
		"labels":      status.Labels,
		"epoch":       status.Epoch,
		"threshold":   status.Threshold,
	})
}

// SessionInfo reports the caller's current authorization state.
func (h *APIHandler) SessionInfo(c *gin.Context) {
	sess := session.FromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated":  sess.Authenticated(),
		"name":           sess.UserName,
		"level":          sess.Level,
		"level_label":    models.LevelLabel(sess.Level),
		"admin_override": sess.AdminOverride,
	})
}
