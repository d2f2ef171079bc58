package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/services"

	"github.com/gin-gonic/gin"
)

type pendingRequestsController struct{ svc services.RegistryService }

func NewPendingRequestsController(svc services.RegistryService) *pendingRequestsController {
	return &pendingRequestsController{svc: svc}
}

func (h *pendingRequestsController) Handle(c *gin.Context) {
	reqs, err := h.svc.PendingRequests(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs, "count": len(reqs)})
}
