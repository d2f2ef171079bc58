package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type VerificationStatus string

const (
	VerificationPending VerificationStatus = "PENDING"
	VerificationSuccess VerificationStatus = "SUCCESS"
	VerificationFailure VerificationStatus = "FAILURE"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationSuccess, VerificationFailure:
		return true
	}
	return false
}

// VerificationRequest mirrors the contract record. CodeHash is set once the
// request resolves successfully and points at the stored VerificationResult.
type VerificationRequest struct {
	ID         uint64             `json:"id"`
	Repository string             `json:"repository"`
	Fee        U128               `json:"fee"`
	Status     VerificationStatus `json:"status"`
	CodeHash   CodeHash           `json:"code_hash,omitempty"`
	CreatedAt  uint64             `json:"created_at"`
	UpdatedAt  uint64             `json:"updated_at"`
}

type VerificationResult struct {
	CodeHash   CodeHash `json:"code_hash"`
	CodeURL    string   `json:"code_url"`
	Repository string   `json:"repository"`
	Remote     string   `json:"remote"`
	Branch     string   `json:"branch"`
	Commit     string   `json:"commit"`
	RequestID  uint64   `json:"request_id"`
}

// ParseVerificationRequest decodes one element of a pending-requests listing and
// rejects records missing the fields the relay depends on.
func ParseVerificationRequest(raw json.RawMessage) (VerificationRequest, error) {
	var wire struct {
		ID         *uint64            `json:"id"`
		Repository *string            `json:"repository"`
		Fee        *U128              `json:"fee"`
		Status     VerificationStatus `json:"status"`
		CodeHash   CodeHash           `json:"code_hash"`
		CreatedAt  uint64             `json:"created_at"`
		UpdatedAt  uint64             `json:"updated_at"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return VerificationRequest{}, fmt.Errorf("decode verification request: %w", err)
	}
	var missing []string
	if wire.ID == nil {
		missing = append(missing, "id")
	}
	if wire.Repository == nil || strings.TrimSpace(*wire.Repository) == "" {
		missing = append(missing, "repository")
	}
	if wire.Fee == nil {
		missing = append(missing, "fee")
	}
	if len(missing) > 0 {
		return VerificationRequest{}, fmt.Errorf("verification request missing %s", strings.Join(missing, ", "))
	}
	if !wire.Status.Valid() {
		return VerificationRequest{}, fmt.Errorf("verification request %d has unknown status %q", *wire.ID, wire.Status)
	}
	return VerificationRequest{
		ID:         *wire.ID,
		Repository: *wire.Repository,
		Fee:        *wire.Fee,
		Status:     wire.Status,
		CodeHash:   wire.CodeHash,
		CreatedAt:  wire.CreatedAt,
		UpdatedAt:  wire.UpdatedAt,
	}, nil
}
