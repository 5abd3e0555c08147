package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pixelstream-dev/matchmaker/internal/logger"
)

// RequestLogger logs every request with method, path, status, duration, and
// client IP. Log level follows the response class: INFO for 2xx/3xx, WARN
// for 4xx, ERROR for 5xx.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		ev := logger.HTTP().Info()
		switch {
		case status >= 500:
			ev = logger.HTTP().Error()
		case status >= 400:
			ev = logger.HTTP().Warn()
		}

		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}
