package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/promptdeck/promptdeck/cmd/server/internal/audit"
	"github.com/promptdeck/promptdeck/pkg/logger"
	"github.com/promptdeck/promptdeck/pkg/metrics"
)

// RequestLogger writes a structured request log line and injects request_id.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Set("request_id", reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)

		c.Next()

		duration := time.Since(start)

		logger.L().Info("http_request",
			"rid", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Metrics records one Prometheus sample per handled request, labeled by the
// route template rather than the raw path to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// AuditTrail mirrors every handled API request into the audit log.
func AuditTrail(sink audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		userID := ""
		if v, ok := c.Get(ContextUserID); ok {
			userID, _ = v.(string)
		}
		sink.APICall(userID, c.ClientIP(), c.Request.URL.Path, c.Request.Method,
			c.Writer.Status(), time.Since(start))
	}
}
