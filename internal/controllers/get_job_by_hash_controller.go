package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

type getJobByHashController struct{ svc services.WebhookService }

func NewGetJobByHashController(svc services.WebhookService) *getJobByHashController {
	return &getJobByHashController{svc: svc}
}

func (h *getJobByHashController) Handle(c *gin.Context) {
	hash, err := domain.ParseCodeHash(c.Param("codeHash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.JobByHash(c.Request.Context(), hash)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
