package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

// statusFor maps service and client errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCall), errors.Is(err, domain.ErrInvalidCodeHash):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrResolutionDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, near.ErrExecution):
		return http.StatusConflict
	case errors.Is(err, circleci.ErrMissingArtifact), errors.Is(err, circleci.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, circleci.ErrTransport), errors.Is(err, near.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, near.ErrKeyLookup):
		return http.StatusInternalServerError
	default:
		var rpcErr *near.RPCError
		if errors.As(err, &rpcErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
