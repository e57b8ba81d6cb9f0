package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// GetCosts reports accumulated provider spend plus today's order budget.
// An optional ?since= (RFC 3339) bounds the spend window.
func (s *Server) GetCosts(c *gin.Context) {
	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err == nil {
			since = &parsed
		}
	}

	summary, err := s.usageSvc.Summary(c.Request.Context(), since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quota, err := s.gate.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": summary,
		"quota": quota,
		"mode":  s.cfg.EagleViewMode,
	})
}
