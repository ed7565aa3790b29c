package handlers

import (
	"io"
	"net/http"
	"strconv"

	"facegate/internal/sse"
	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultEventLimit = 100

// Events returns the newest audit entries.
func (h *APIHandler) Events(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	events, err := h.repo.RecentEvents(limit)
	if err != nil {
		log.WithError(err).Error("Failed to list audit events")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could not list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "events": events})
}

// EventStream pushes audit events to the client over SSE.
func (h *APIHandler) EventStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-client
		if !ok {
			return false
		}
		c.SSEvent("message", string(msg))
		return true
	})
}

// SystemStatus returns host and process statistics.
func (h *APIHandler) SystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, utils.GetSystemStats())
}
