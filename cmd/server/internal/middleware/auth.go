package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/promptdeck/promptdeck/cmd/server/internal/prompts"
	"github.com/promptdeck/promptdeck/cmd/server/internal/users"
	"github.com/promptdeck/promptdeck/pkg/logger"
)

// Context keys set by Auth.
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextIsAdmin  = "is_admin"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	ParseToken(token string) (*users.Claims, error)
}

// reject aborts with the same response envelope the api package writes, so
// guard rejections are indistinguishable from handler errors to clients.
func reject(c *gin.Context, status int, message string) {
	logger.L().Warn("request rejected",
		"rid", c.GetString("request_id"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"error", message,
	)
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    status,
		"message": message,
		"data": gin.H{
			"error":  message,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Auth requires a valid bearer token and places the caller's identity in the
// request context.
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			reject(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := parser.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			reject(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers. Must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			reject(c, http.StatusForbidden, "admin only")
			return
		}
		c.Next()
	}
}

// ActorFrom extracts the authenticated caller from the gin context.
func ActorFrom(c *gin.Context) prompts.Actor {
	return prompts.Actor{
		ID:      c.GetString(ContextUserID),
		IsAdmin: c.GetBool(ContextIsAdmin),
	}
}

// CORS handles cross-origin requests for the configured origins. An empty
// list allows any origin, which is only appropriate in development.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if len(allowed) == 0 || allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
