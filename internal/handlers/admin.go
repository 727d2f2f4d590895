package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) ListSecurityEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	events, err := h.events.List(c.Request.Context(), c.Query("userId"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list security events failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	items := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		items = append(items, map[string]interface{}{
			"id":        event.ID,
			"userId":    event.UserID,
			"eventType": event.Type,
			"ipAddress": event.IPAddress,
			"userAgent": event.UserAgent,
			"details":   event.Details,
			"createdAt": event.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// TriggerCleanup runs one out-of-band sweep without touching the
// reaper's schedule.
func (h HandlerSet) TriggerCleanup(c *gin.Context) {
	h.reaper.RunManual()
	c.JSON(http.StatusOK, gin.H{"status": "sweep completed"})
}
