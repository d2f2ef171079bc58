package controllers

import (
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

type setFeeController struct{ svc services.ResolutionService }

func NewSetFeeController(svc services.ResolutionService) *setFeeController {
	return &setFeeController{svc: svc}
}

type setFeeRequest struct {
	VerificationFee domain.U128 `json:"verificationFee"`
}

// Handle submits set_verification_fee signed by the relay account, which must own the contract.
func (h *setFeeController) Handle(c *gin.Context) {
	var req setFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	logger := middleware.Logger(c).With("fee", req.VerificationFee.String(), "by", middleware.Claims(c).Principal())

	out, err := h.svc.Resolve(c.Request.Context(), domain.SetVerificationFeeCall{VerificationFee: req.VerificationFee})
	if err != nil {
		logger.Warn("fee update failed", "err", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	logger.Info("fee updated", "tx", out.TxHash)
	c.JSON(http.StatusOK, gin.H{"verificationFee": req.VerificationFee.String(), "txHash": out.TxHash, "status": "updated"})
}
