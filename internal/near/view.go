package near

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
	"github.com/mr-tron/base58"
)

const finalityFinal = "final"

// View calls a read-only contract method and returns its raw JSON result.
func (c *Client) View(ctx context.Context, contractID string, view domain.ContractView) (json.RawMessage, error) {
	args, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", view.Method(), err)
	}
	return c.CallFunction(ctx, contractID, view.Method(), args)
}

// CallFunction runs a call_function query at final finality.
func (c *Client) CallFunction(ctx context.Context, contractID, method string, args []byte) (json.RawMessage, error) {
	params := map[string]any{
		"request_type": "call_function",
		"finality":     finalityFinal,
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}
	var out struct {
		Result *[]int  `json:"result"`
		Error  *string `json:"error"`
	}
	if err := c.call(ctx, "query", params, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, &RPCError{Name: "QUERY_ERROR", Message: *out.Error}
	}
	if out.Result == nil {
		return nil, fmt.Errorf("view %s: %w: no result bytes", method, ErrMalformedResponse)
	}
	raw := make([]byte, len(*out.Result))
	for i, v := range *out.Result {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("view %s: %w: byte out of range", method, ErrMalformedResponse)
		}
		raw[i] = byte(v)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("view %s: %w: result is not json", method, ErrMalformedResponse)
	}
	return json.RawMessage(raw), nil
}

type AccessKeyView struct {
	Nonce     uint64
	BlockHash [32]byte
}

// ViewAccessKey reads the nonce of an access key and the hash of the block it was read at.
// Every failure is reported as ErrKeyLookup.
func (c *Client) ViewAccessKey(ctx context.Context, accountID string, pub ed25519.PublicKey) (AccessKeyView, error) {
	params := map[string]any{
		"request_type": "view_access_key",
		"finality":     finalityFinal,
		"account_id":   accountID,
		"public_key":   FormatPublicKey(pub),
	}
	var out struct {
		Nonce     *uint64 `json:"nonce"`
		BlockHash string  `json:"block_hash"`
		Error     *string `json:"error"`
	}
	if err := c.call(ctx, "query", params, &out); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return AccessKeyView{}, fmt.Errorf("%w: %s for %s: %v", ErrKeyLookup, rpcErr.CauseName(), accountID, rpcErr)
		}
		return AccessKeyView{}, fmt.Errorf("%w: %v", ErrKeyLookup, err)
	}
	if out.Error != nil {
		return AccessKeyView{}, fmt.Errorf("%w: %s", ErrKeyLookup, *out.Error)
	}
	if out.Nonce == nil {
		return AccessKeyView{}, fmt.Errorf("%w: response has no nonce", ErrKeyLookup)
	}
	hash, err := base58.Decode(out.BlockHash)
	if err != nil || len(hash) != 32 {
		return AccessKeyView{}, fmt.Errorf("%w: invalid block hash %q", ErrKeyLookup, out.BlockHash)
	}
	v := AccessKeyView{Nonce: *out.Nonce}
	copy(v.BlockHash[:], hash)
	return v, nil
}

// BroadcastTxAsync submits a signed transaction without waiting and returns its hash.
func (c *Client) BroadcastTxAsync(ctx context.Context, signed []byte) (string, error) {
	var hash string
	if err := c.call(ctx, "broadcast_tx_async", []string{base64.StdEncoding.EncodeToString(signed)}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// TxStatus is a decoded final execution status.
type TxStatus struct {
	// Pending is true for NotStarted and Started.
	Pending      bool
	SuccessValue []byte
	Failure      json.RawMessage
}

// TxStatus queries the status of a transaction sent by senderID.
func (c *Client) TxStatus(ctx context.Context, txHash, senderID string) (TxStatus, error) {
	var out struct {
		Status json.RawMessage `json:"status"`
	}
	if err := c.call(ctx, "tx", []string{txHash, senderID}, &out); err != nil {
		return TxStatus{}, err
	}
	return parseFinalStatus(out.Status)
}

func parseFinalStatus(raw json.RawMessage) (TxStatus, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "NotStarted", "Started":
			return TxStatus{Pending: true}, nil
		}
		return TxStatus{}, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, s)
	}
	var obj struct {
		SuccessValue *string        `json:"SuccessValue"`
		Failure      json.RawMessage `json:"Failure"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return TxStatus{}, fmt.Errorf("%w: status: %v", ErrMalformedResponse, err)
	}
	switch {
	case obj.SuccessValue != nil:
		v, err := base64.StdEncoding.DecodeString(*obj.SuccessValue)
		if err != nil {
			return TxStatus{}, fmt.Errorf("%w: success value: %v", ErrMalformedResponse, err)
		}
		return TxStatus{SuccessValue: v}, nil
	case len(obj.Failure) > 0:
		return TxStatus{Failure: obj.Failure}, nil
	}
	return TxStatus{}, fmt.Errorf("%w: status %s", ErrMalformedResponse, string(raw))
}
