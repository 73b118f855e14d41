package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"promo-kiosk-backend/internal/models"
	"promo-kiosk-backend/internal/services"
)

const (
	ContextEgmCode   = "egm_code"
	ContextRequestID = "request_id"
)

// HostTokenValidator checks bearer tokens presented by the MBox host.
type HostTokenValidator interface {
	HostAuthEnabled() bool
	ValidateHostToken(token string) (*services.HostClaims, error)
}

// RateLimiter counts attempts per player and action.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error)
}

// SessionSource yields the current kiosk session.
type SessionSource interface {
	Snapshot() models.MboxData
}

// HostAuth guards the host endpoints. Authentication is skipped when no host
// secret is configured.
func HostAuth(validator HostTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validator.HostAuthEnabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// browsers cannot set headers on a websocket handshake
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := validator.ValidateHostToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextEgmCode, claims.EgmCode)
		c.Next()
	}
}

// PinAttemptLimit caps PIN authentications per player and minute. Anonymous
// sessions share one bucket. A limit of zero disables the check.
func PinAttemptLimit(limiter RateLimiter, session SessionSource, limit int) gin.HandlerFunc {
	const window = time.Minute

	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		playerID := session.Snapshot().OwnerID
		if playerID == "" {
			playerID = "anonymous"
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), playerID, services.ActionPinAttempt, limit, window)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many PIN attempts. Please wait.",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
