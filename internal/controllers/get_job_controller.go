package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/services"

	"github.com/gin-gonic/gin"
)

type getJobController struct{ svc services.WebhookService }

func NewGetJobController(svc services.WebhookService) *getJobController {
	return &getJobController{svc: svc}
}

func (h *getJobController) Handle(c *gin.Context) {
	n, err := services.ParseJobNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.Job(c.Request.Context(), n)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
