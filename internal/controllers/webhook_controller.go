package controllers

import (
	"errors"
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/gin-gonic/gin"
)

type webhookController struct{ svc services.WebhookService }

func NewWebhookController(svc services.WebhookService) *webhookController {
	return &webhookController{svc: svc}
}

// Handle answers a verified job-completed webhook with the base58 code hash as
// plain text. Runs behind middleware.WebhookSignature.
func (h *webhookController) Handle(c *gin.Context) {
	logger := middleware.Logger(c)
	payload, err := domain.ParseJobCompletedPayload(middleware.RawBody(c))
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("bad_payload").Inc()
		logger.Warn("webhook payload rejected", "err", err)
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.HandleJobCompleted(c.Request.Context(), payload)
	switch {
	case errors.Is(err, services.ErrJobNotSuccessful):
		metrics.WebhooksTotal.WithLabelValues("job_failed").Inc()
		c.String(http.StatusAccepted, err.Error())
		return
	case err != nil:
		metrics.WebhooksTotal.WithLabelValues("assembly_error").Inc()
		logger.Warn("webhook assembly failed", "job", payload.Job.Number, "err", err)
		c.String(statusFor(err), err.Error())
		return
	}

	metrics.WebhooksTotal.WithLabelValues("success").Inc()
	c.String(http.StatusOK, rec.Result.CodeHash.String())
}
