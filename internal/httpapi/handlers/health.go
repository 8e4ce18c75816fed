package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/db"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

// Healthz pings the database and Redis.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"db": "ok", "redis": "ok"}
	healthy := true
	if err := db.Ping(ctx, h.DB); err != nil {
		checks["db"] = err.Error()
		healthy = false
	}
	if err := h.Redis.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.Log.Warn().Interface("checks", checks).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    50300,
			"message": "unhealthy",
			"data":    checks,
		})
		return
	}
	common.OK(c, checks)
}
