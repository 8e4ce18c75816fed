package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger writes one line per request and warns when a request is slower
// than slow. A zero slow disables the warning.
func Logger(l zerolog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		ev := l.Info()
		if c.Writer.Status() >= 500 {
			ev = l.Error()
		} else if slow > 0 && took > slow {
			ev = l.Warn().Bool("slow", true)
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", took).
			Str("request_id", c.GetString(RequestIDKey)).
			Msg("request")
	}
}
