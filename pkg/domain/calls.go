package domain

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCall = errors.New("invalid contract call")

// OneYocto is the minimal deposit privileged contract methods require.
var OneYocto = NewU128(1)

// ContractCall is the closed set of state-changing contract methods the relay may
// submit. The value itself is the JSON argument object.
type ContractCall interface {
	Method() string
	Deposit() U128
	Validate() error
	contractCall()
}

// ContractView is the closed set of read-only contract methods.
type ContractView interface {
	Method() string
	contractView()
}

type VerificationSuccessCall struct {
	Result VerificationResult `json:"result"`
}

func (VerificationSuccessCall) Method() string { return "verification_success" }
func (VerificationSuccessCall) Deposit() U128  { return OneYocto }
func (VerificationSuccessCall) contractCall()  {}

func (c VerificationSuccessCall) Validate() error {
	r := c.Result
	if len(r.CodeHash) == 0 {
		return fmt.Errorf("%w: result.code_hash is required", ErrInvalidCall)
	}
	if len(r.CodeHash) != sha256.Size {
		return fmt.Errorf("%w: result.code_hash must be %d bytes, got %d", ErrInvalidCall, sha256.Size, len(r.CodeHash))
	}
	if strings.TrimSpace(r.CodeURL) == "" {
		return fmt.Errorf("%w: result.code_url is required", ErrInvalidCall)
	}
	if strings.TrimSpace(r.Repository) == "" || strings.TrimSpace(r.Commit) == "" {
		return fmt.Errorf("%w: result.repository and result.commit are required", ErrInvalidCall)
	}
	return nil
}

type VerificationFailureCall struct {
	ID U64 `json:"id"`
}

func (VerificationFailureCall) Method() string  { return "verification_failure" }
func (VerificationFailureCall) Deposit() U128   { return OneYocto }
func (VerificationFailureCall) Validate() error { return nil }
func (VerificationFailureCall) contractCall()   {}

type SetVerificationFeeCall struct {
	VerificationFee U128 `json:"verification_fee"`
}

func (SetVerificationFeeCall) Method() string { return "set_verification_fee" }
func (SetVerificationFeeCall) Deposit() U128  { return OneYocto }
func (SetVerificationFeeCall) contractCall()  {}

func (c SetVerificationFeeCall) Validate() error {
	if c.VerificationFee.IsZero() {
		return fmt.Errorf("%w: verification_fee must be positive", ErrInvalidCall)
	}
	return nil
}

// RequestVerificationCall attaches Fee plus StorageDeposit; the contract refunds
// whatever storage does not consume.
type RequestVerificationCall struct {
	Repository     string `json:"repository"`
	Checkout       string `json:"checkout"`
	Path           string `json:"path"`
	Fee            U128   `json:"fee"`
	StorageDeposit U128   `json:"-"`
}

func (RequestVerificationCall) Method() string  { return "request_verification" }
func (c RequestVerificationCall) Deposit() U128 { return c.Fee.Add(c.StorageDeposit) }
func (RequestVerificationCall) contractCall()   {}

func (c RequestVerificationCall) Validate() error {
	if strings.TrimSpace(c.Repository) == "" {
		return fmt.Errorf("%w: repository is required", ErrInvalidCall)
	}
	if c.Fee.IsZero() {
		return fmt.Errorf("%w: fee must be positive", ErrInvalidCall)
	}
	return nil
}

type GetPendingRequests struct{}

func (GetPendingRequests) Method() string { return "get_pending_requests" }
func (GetPendingRequests) contractView()  {}

type GetVerificationRequest struct {
	ID U64 `json:"id"`
}

func (GetVerificationRequest) Method() string { return "get_verification_request" }
func (GetVerificationRequest) contractView()  {}

type VerifyCodeHash struct {
	CodeHash CodeHash `json:"code_hash"`
}

func (VerifyCodeHash) Method() string { return "verify_code_hash" }
func (VerifyCodeHash) contractView()  {}

type GetVerificationFee struct{}

func (GetVerificationFee) Method() string { return "get_verification_fee" }
func (GetVerificationFee) contractView()  {}
