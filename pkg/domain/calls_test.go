package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestContractCallValidation(t *testing.T) {
	tests := []struct {
		name    string
		call    ContractCall
		wantErr bool
	}{
		{"failure", VerificationFailureCall{ID: 1}, false},
		{"success complete", VerificationSuccessCall{Result: VerificationResult{CodeHash: HashBytes([]byte("c")), CodeURL: "u", Repository: "r", Commit: "c"}}, false},
		{"success short hash", VerificationSuccessCall{Result: VerificationResult{CodeHash: CodeHash{1}, CodeURL: "u", Repository: "r", Commit: "c"}}, true},
		{"success without hash", VerificationSuccessCall{Result: VerificationResult{CodeURL: "u", Repository: "r", Commit: "c"}}, true},
		{"fee zero", SetVerificationFeeCall{}, true},
		{"fee set", SetVerificationFeeCall{VerificationFee: NewU128(10)}, false},
		{"request without repository", RequestVerificationCall{Fee: NewU128(1)}, true},
		{"request ok", RequestVerificationCall{Repository: "r", Fee: NewU128(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCall) {
				t.Fatalf("expected ErrInvalidCall, got %v", err)
			}
		})
	}
}

func TestContractCallDeposits(t *testing.T) {
	if (VerificationFailureCall{}).Deposit() != OneYocto {
		t.Fatalf("privileged call must attach one yocto")
	}
	req := RequestVerificationCall{Repository: "r", Fee: NewU128(100), StorageDeposit: NewU128(5)}
	if req.Deposit().String() != "105" {
		t.Fatalf("unexpected deposit %s", req.Deposit())
	}
	b, _ := json.Marshal(req)
	if string(b) != `{"repository":"r","checkout":"","path":"","fee":"100"}` {
		t.Fatalf("unexpected args %s", b)
	}
	b, _ = json.Marshal(VerificationFailureCall{ID: 12})
	if string(b) != `{"id":"12"}` {
		t.Fatalf("unexpected args %s", b)
	}
}
