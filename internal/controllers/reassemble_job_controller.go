package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/services"

	"github.com/gin-gonic/gin"
)

type reassembleJobController struct{ svc services.WebhookService }

func NewReassembleJobController(svc services.WebhookService) *reassembleJobController {
	return &reassembleJobController{svc: svc}
}

func (h *reassembleJobController) Handle(c *gin.Context) {
	n, err := services.ParseJobNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	middleware.Logger(c).Info("reassemble requested", "job", n, "by", middleware.Claims(c).Principal())
	rec, err := h.svc.Reassemble(c.Request.Context(), n)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "job": rec})
		return
	}
	c.JSON(http.StatusOK, rec)
}
