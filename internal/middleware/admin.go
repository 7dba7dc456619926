package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware guards operations that rewrite stored forecasts (batch update, cleanup).
// Callers authenticate with the admin API key or with a JWT carrying the admin role.
type AdminMiddleware struct {
	apiKey string
	auth   *AuthMiddleware
}

// NewAdminMiddleware creates a new admin authentication middleware. An empty apiKey disables
// key access; auth may be nil to disable token access.
func NewAdminMiddleware(apiKey string, auth *AuthMiddleware) *AdminMiddleware {
	return &AdminMiddleware{
		apiKey: apiKey,
		auth:   auth,
	}
}

// RequireAdminAuth middleware validates admin API keys and admin tokens
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.ValidateAdminKey(c.GetHeader("X-API-Key")) {
			c.Set(ContextRole, RoleAdmin)
			c.Next()
			return
		}

		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if am.ValidateAdminKey(token) {
				c.Set(ContextRole, RoleAdmin)
				c.Next()
				return
			}
			if am.auth != nil {
				if claims, err := am.auth.ValidateToken(token); err == nil && claims.role() == RoleAdmin {
					c.Set(ContextUserID, claims.UserID)
					c.Set(ContextRole, RoleAdmin)
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key or admin token required for this endpoint",
		})
	}
}

// ValidateAdminKey validates an admin API key
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if am.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(am.apiKey)) == 1
}
