package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	redis Pinger
	host  *MboxHandler
}

func NewHealthHandler(redis Pinger, host *MboxHandler) *HealthHandler {
	return &HealthHandler{redis: redis, host: host}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	hostConnected := h.host != nil && h.host.Connected()
	if err := h.redis.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"redis":  err.Error(),
			"host":   hostConnected,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"redis":  "ok",
		"host":   hostConnected,
	})
}
