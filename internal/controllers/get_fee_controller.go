package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/services"

	"github.com/gin-gonic/gin"
)

type getFeeController struct{ svc services.RegistryService }

func NewGetFeeController(svc services.RegistryService) *getFeeController {
	return &getFeeController{svc: svc}
}

func (h *getFeeController) Handle(c *gin.Context) {
	fee, err := h.svc.Fee(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verificationFee": fee})
}
