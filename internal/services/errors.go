package services

import (
	"errors"

	"github.com/NEAR-Edu/contract-registry/internal/repository"
)

var (
	// ErrJobNotSuccessful marks a webhook for a job that did not finish with status success.
	ErrJobNotSuccessful = errors.New("job not successful")
	// ErrResolutionDisabled is returned when the relay runs without signer credentials.
	ErrResolutionDisabled = errors.New("on-chain resolution disabled")
	ErrNotFound           = repository.ErrNotFound
)
