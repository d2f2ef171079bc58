package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

type getVerificationController struct{ svc services.RegistryService }

func NewGetVerificationController(svc services.RegistryService) *getVerificationController {
	return &getVerificationController{svc: svc}
}

func (h *getVerificationController) Handle(c *gin.Context) {
	hash, err := domain.ParseCodeHash(c.Param("codeHash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Verification(c.Request.Context(), hash)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
