package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthController struct {
	ping func(ctx context.Context) error
}

// NewHealthController reports unhealthy while ping fails. A nil ping always passes.
func NewHealthController(ping func(ctx context.Context) error) *healthController {
	return &healthController{ping: ping}
}

func (h *healthController) Handle(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
