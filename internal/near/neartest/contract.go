package neartest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

func (n *Node) view(method string, args []byte) (any, error) {
	switch method {
	case "get_pending_requests":
		out := []domain.VerificationRequest{}
		for _, r := range n.requests {
			if r.Status == domain.VerificationPending {
				out = append(out, r)
			}
		}
		return out, nil
	case "get_verification_request":
		var a struct {
			ID domain.U64 `json:"id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if uint64(a.ID) >= uint64(len(n.requests)) {
			return nil, nil
		}
		return n.requests[a.ID], nil
	case "verify_code_hash":
		var a struct {
			CodeHash domain.CodeHash `json:"code_hash"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if v, ok := n.verifications[a.CodeHash.String()]; ok {
			return v, nil
		}
		return nil, nil
	case "get_verification_fee":
		return n.fee, nil
	}
	return nil, fmt.Errorf("MethodNotFound: %s", method)
}

// execute applies every action of a transaction and returns its final status.
func (n *Node) execute(tx near.SignedTransaction) json.RawMessage {
	var value any
	for i, a := range tx.Actions {
		if tx.ReceiverID != n.contractID {
			return failure(i, "account "+tx.ReceiverID+" does not exist")
		}
		v, err := n.call(tx.SignerID, a)
		if err != nil {
			return failure(i, "Smart contract panicked: "+err.Error())
		}
		value = v
	}
	var encoded string
	if value != nil {
		b, _ := json.Marshal(value)
		encoded = base64.StdEncoding.EncodeToString(b)
	}
	b, _ := json.Marshal(map[string]string{"SuccessValue": encoded})
	return b
}

func failure(index int, msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"Failure": map[string]any{
			"ActionError": map[string]any{
				"index": index,
				"kind": map[string]any{
					"FunctionCallError": map[string]any{"ExecutionError": msg},
				},
			},
		},
	})
	return b
}

func (n *Node) call(predecessor string, a near.FunctionCall) (any, error) {
	switch a.MethodName {
	case "request_verification":
		var args struct {
			Repository string      `json:"repository"`
			Fee        domain.U128 `json:"fee"`
		}
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return nil, err
		}
		if a.Deposit.IsZero() {
			return nil, errors.New("Deposit required")
		}
		if a.Deposit.Cmp(args.Fee) < 0 {
			return nil, errors.New("Deposit less than indicated fee")
		}
		if args.Fee.Cmp(n.fee) < 0 {
			return nil, errors.New("Fee less than minimum requirement")
		}
		return n.appendRequest(args.Repository, args.Fee), nil

	case "set_verification_fee":
		var args struct {
			VerificationFee domain.U128 `json:"verification_fee"`
		}
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return nil, err
		}
		if a.Deposit != domain.OneYocto {
			return nil, errors.New("Requires attached deposit of exactly 1 yoctoNEAR")
		}
		if predecessor != n.owner {
			return nil, errors.New("Owner only")
		}
		n.fee = args.VerificationFee
		return nil, nil

	case "verification_success":
		var args struct {
			Result domain.VerificationResult `json:"result"`
		}
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return nil, err
		}
		return nil, n.resolve(predecessor, a.Deposit, args.Result.RequestID, &args.Result)

	case "verification_failure":
		var args struct {
			ID domain.U64 `json:"id"`
		}
		if err := json.Unmarshal(a.Args, &args); err != nil {
			return nil, err
		}
		return nil, n.resolve(predecessor, a.Deposit, uint64(args.ID), nil)
	}
	return nil, fmt.Errorf("MethodNotFound: %s", a.MethodName)
}

func (n *Node) resolve(predecessor string, deposit domain.U128, id uint64, result *domain.VerificationResult) error {
	if deposit.IsZero() {
		return errors.New("Deposit required")
	}
	if predecessor != n.owner {
		return errors.New("Owner only")
	}
	if id >= uint64(len(n.requests)) {
		return errors.New("Request ID does not exist")
	}
	req := n.requests[id]
	if req.Status != domain.VerificationPending {
		return errors.New("Request already resolved")
	}
	n.clock += 1_000_000_000
	req.UpdatedAt = n.clock
	if result != nil {
		n.verifications[result.CodeHash.String()] = *result
		req.Status = domain.VerificationSuccess
		req.CodeHash = result.CodeHash
	} else {
		req.Status = domain.VerificationFailure
	}
	n.requests[id] = req
	return nil
}
