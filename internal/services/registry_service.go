package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

type ContractViewer interface {
	View(ctx context.Context, contractID string, view domain.ContractView) (json.RawMessage, error)
}

// RegistryService exposes the contract's read-only views.
type RegistryService interface {
	PendingRequests(ctx context.Context) ([]domain.VerificationRequest, error)
	Request(ctx context.Context, id uint64) (*domain.VerificationRequest, error)
	Verification(ctx context.Context, hash domain.CodeHash) (*domain.VerificationResult, error)
	Fee(ctx context.Context) (domain.U128, error)
}

type registryService struct {
	viewer     ContractViewer
	contractID string
}

func NewRegistryService(viewer ContractViewer, contractID string) RegistryService {
	return &registryService{viewer: viewer, contractID: contractID}
}

func (s *registryService) PendingRequests(ctx context.Context) ([]domain.VerificationRequest, error) {
	raw, err := s.viewer.View(ctx, s.contractID, domain.GetPendingRequests{})
	if err != nil {
		return nil, err
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("decode pending requests: %w", err)
	}
	out := make([]domain.VerificationRequest, 0, len(elems))
	for _, el := range elems {
		req, err := domain.ParseVerificationRequest(el)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *registryService) Request(ctx context.Context, id uint64) (*domain.VerificationRequest, error) {
	raw, err := s.viewer.View(ctx, s.contractID, domain.GetVerificationRequest{ID: domain.U64(id)})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	req, err := domain.ParseVerificationRequest(raw)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *registryService) Verification(ctx context.Context, hash domain.CodeHash) (*domain.VerificationResult, error) {
	raw, err := s.viewer.View(ctx, s.contractID, domain.VerifyCodeHash{CodeHash: hash})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	var res domain.VerificationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode verification result: %w", err)
	}
	return &res, nil
}

func (s *registryService) Fee(ctx context.Context) (domain.U128, error) {
	raw, err := s.viewer.View(ctx, s.contractID, domain.GetVerificationFee{})
	if err != nil {
		return domain.U128{}, err
	}
	var fee domain.U128
	if err := json.Unmarshal(raw, &fee); err != nil {
		return domain.U128{}, fmt.Errorf("decode verification fee: %w", err)
	}
	return fee, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
