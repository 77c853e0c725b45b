package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curator-backend/internal/platform/ctxutil"
	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

// RequestLogger logs one line per request. Requests slower than
// HTTP_SLOW_REQUEST (default 2s) log at warn even when they succeed.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	slow := envutil.Duration("HTTP_SLOW_REQUEST", 2*time.Second)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil || c.Request.URL.Path == "/healthcheck" {
			return
		}

		elapsed := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		td := ctxutil.GetTraceData(c.Request.Context())

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case slow > 0 && elapsed > slow:
			log.Warn("Slow HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
