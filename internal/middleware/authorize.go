package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/api/internal/audit"
	"wayfarer/api/internal/models"
)

// RequireRoles gates a route group to the given roles. Denials are
// recorded in the security event trail.
func RequireRoles(recorder *audit.Recorder, roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		userVal, exists := c.Get("current_user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, ok := userVal.(models.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_user"})
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			recorder.Record(models.SecurityEvent{
				UserID:    &user.ID,
				Type:      models.EventPermissionDenied,
				IPAddress: c.ClientIP(),
				UserAgent: c.GetHeader("User-Agent"),
				Details:   c.Request.Method + " " + c.FullPath(),
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
