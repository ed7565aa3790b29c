package handlers

import (
	"fmt"
	"net/http"

	"facegate/internal/audit"
	"facegate/internal/content"
	"facegate/internal/session"

	"github.com/gin-gonic/gin"
)

// requireResearchLevel enforces the catalog's minimum level. Returns false
// after writing the response when the caller is not allowed.
func (h *APIHandler) requireResearchLevel(c *gin.Context, sess *session.Session, what string) bool {
	if sess.Level >= content.MinLevel {
		return true
	}
	h.audit.Record(audit.StatusAccessDenied, sess.UserName, nil,
		fmt.Sprintf("attempt to access %s below level %d", what, content.MinLevel))
	c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "insufficient authorization level"})
	return false
}

// ResearchList returns the catalog metadata. Level 2+ only.
func (h *APIHandler) ResearchList(c *gin.Context) {
	sess := session.FromContext(c)
	if !h.requireResearchLevel(c, sess, "research list") {
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "docs": h.catalog.List()})
}

// ResearchDetail returns one catalog entry. An unknown slug is a soft miss:
// logged as not_found, empty result.
func (h *APIHandler) ResearchDetail(c *gin.Context) {
	sess := session.FromContext(c)
	slug := c.Param("slug")
	if !h.requireResearchLevel(c, sess, "research "+slug) {
		return
	}

	entry, ok := h.catalog.BySlug(slug)
	if !ok {
		h.audit.Record(audit.StatusNotFound, sess.UserName, nil, "research "+slug+" not found")
		c.JSON(http.StatusOK, gin.H{"ok": true, "doc": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "doc": entry})
}
