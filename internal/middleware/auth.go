package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wayfarer/api/internal/cache"
	"wayfarer/api/internal/config"
	"wayfarer/api/internal/repository"
	"wayfarer/api/internal/security"
)

// Auth verifies the bearer access token and the liveness of its
// correlated session. Signature verification is pure computation; the
// session check hits the redis cache first and falls back to the
// session registry, so a revoked session stops authenticating even
// while its access token is still within expiry.
func Auth(
	cfg *config.AppConfig,
	users repository.UserStore,
	sessions repository.SessionStore,
	sessionCache *cache.SessionCache,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		if !sessionLive(c, claims, sessions, sessionCache, log) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_revoked"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.Subject)
		if err != nil {
			// A store outage is not a credential failure.
			if errors.Is(err, repository.ErrStoreUnavailable) {
				log.Error().Err(err).Str("user_id", claims.Subject).Msg("user lookup failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}

		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_inactive"})
			return
		}

		c.Set("access_claims", *claims)
		c.Set("current_user", user)

		c.Next()
	}
}

func sessionLive(
	c *gin.Context,
	claims *security.AccessClaims,
	sessions repository.SessionStore,
	sessionCache *cache.SessionCache,
	log zerolog.Logger,
) bool {
	ctx := c.Request.Context()

	if sessionCache != nil {
		userID, hit, err := sessionCache.Get(ctx, claims.ID)
		if err != nil {
			log.Warn().Err(err).Msg("session cache read failed")
		} else if hit {
			return userID == claims.Subject
		}
	}

	session, err := sessions.GetByTokenID(ctx, claims.ID)
	if err != nil {
		return false
	}
	if session.UserID != claims.Subject || !session.Live(time.Now()) {
		return false
	}

	if sessionCache != nil {
		if err := sessionCache.Put(ctx, claims.ID, session.UserID); err != nil {
			log.Warn().Err(err).Msg("session cache put failed")
		}
	}
	return true
}
