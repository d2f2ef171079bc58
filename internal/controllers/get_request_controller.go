package controllers

import (
	"net/http"
	"strconv"

	"github.com/NEAR-Edu/contract-registry/internal/services"

	"github.com/gin-gonic/gin"
)

type getRequestController struct{ svc services.RegistryService }

func NewGetRequestController(svc services.RegistryService) *getRequestController {
	return &getRequestController{svc: svc}
}

func (h *getRequestController) Handle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	req, err := h.svc.Request(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}
