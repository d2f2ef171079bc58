package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

type resolveFailureController struct{ svc services.ResolutionService }

func NewResolveFailureController(svc services.ResolutionService) *resolveFailureController {
	return &resolveFailureController{svc: svc}
}

// Handle submits verification_failure for the request and waits for the final outcome.
func (h *resolveFailureController) Handle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	logger := middleware.Logger(c).With("request_id", id, "by", middleware.Claims(c).Principal())
	logger.Info("manual failure resolution requested")

	out, err := h.svc.Resolve(c.Request.Context(), domain.VerificationFailureCall{ID: domain.U64(id)})
	if err != nil {
		body := gin.H{"error": err.Error()}
		var exec *near.ExecutionError
		if errors.As(err, &exec) {
			body["txHash"] = exec.TxHash
			body["reason"] = exec.Message()
		}
		logger.Warn("manual failure resolution failed", "err", err)
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requestId": id, "txHash": out.TxHash, "status": "resolved"})
}
