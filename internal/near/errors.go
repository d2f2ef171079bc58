package near

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyLookup means the signer's access key or account could not be read.
	ErrKeyLookup = errors.New("access key lookup failed")
	// ErrExecution marks on-chain rejections. Match *ExecutionError for details.
	ErrExecution = errors.New("transaction execution failed")
	// ErrUnknownTransaction is the status poller's "not visible yet" condition.
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrStatusPollExhausted is only returned when a bounded StatusPolicy is configured.
	ErrStatusPollExhausted = errors.New("transaction status poll attempts exhausted")
	ErrMalformedResponse   = errors.New("malformed rpc response")
)

const (
	causeUnknownTransaction = "UNKNOWN_TRANSACTION"
	causeUnknownAccessKey   = "UNKNOWN_ACCESS_KEY"
	causeUnknownAccount     = "UNKNOWN_ACCOUNT"
)

type RPCErrorCause struct {
	Name string          `json:"name"`
	Info json.RawMessage `json:"info,omitempty"`
}

// RPCError is a JSON-RPC error object as returned by NEAR nodes.
type RPCError struct {
	Name    string          `json:"name"`
	Cause   *RPCErrorCause  `json:"cause,omitempty"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) CauseName() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Name
}

func (e *RPCError) Error() string {
	parts := []string{"near rpc"}
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	if c := e.CauseName(); c != "" {
		parts = append(parts, c)
	}
	msg := strings.Join(parts, " ")
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Data) > 0 && string(e.Data) != "null" {
		msg += " (" + string(e.Data) + ")"
	}
	return msg
}

func (e *RPCError) Is(target error) bool {
	return target == ErrUnknownTransaction && e.CauseName() == causeUnknownTransaction
}

// ExecutionError carries the Failure object of a final execution outcome.
type ExecutionError struct {
	TxHash  string
	Failure json.RawMessage
}

func (e *ExecutionError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("transaction %s failed: %s", e.TxHash, msg)
	}
	return fmt.Sprintf("transaction %s failed: %s", e.TxHash, string(e.Failure))
}

func (e *ExecutionError) Unwrap() error { return ErrExecution }

// Message extracts the contract panic message when the failure is a function call error.
func (e *ExecutionError) Message() string {
	var f struct {
		ActionError struct {
			Kind struct {
				FunctionCallError struct {
					ExecutionError string `json:"ExecutionError"`
				} `json:"FunctionCallError"`
			} `json:"kind"`
		} `json:"ActionError"`
	}
	if err := json.Unmarshal(e.Failure, &f); err != nil {
		return ""
	}
	return f.ActionError.Kind.FunctionCallError.ExecutionError
}
