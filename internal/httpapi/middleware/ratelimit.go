package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/common"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit is a fixed-window limit keyed by client ip, shared across API
// instances through the limiter. Limiter errors let the request through.
func RateLimit(l Limiter, scope string, limit int, per time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), scope+":"+c.ClientIP(), limit, per)
		if err == nil && !ok {
			common.AbortFail(c, http.StatusTooManyRequests, 42901, "too many requests")
			return
		}
		c.Next()
	}
}
