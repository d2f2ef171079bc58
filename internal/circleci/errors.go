package circleci

import (
	"errors"
	"fmt"
)

var (
	ErrTransport       = errors.New("transport error")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrMissingArtifact = errors.New("missing artifact")
)

// ProviderError wraps a CI provider failure. Kind is one of ErrTransport,
// ErrSchemaMismatch or ErrMissingArtifact, so callers can match with errors.Is.
// Status is the HTTP status of a non-2xx response and 0 otherwise.
type ProviderError struct {
	Kind   error
	Op     string
	Path   string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	msg := "circleci " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func transportError(op, path string, err error) error {
	return &ProviderError{Kind: ErrTransport, Op: op, Path: path, Err: err}
}

func statusError(op, path string, status int) error {
	return &ProviderError{Kind: ErrTransport, Op: op, Path: path, Status: status}
}

func schemaError(op, format string, args ...any) error {
	return &ProviderError{Kind: ErrSchemaMismatch, Op: op, Err: fmt.Errorf(format, args...)}
}
