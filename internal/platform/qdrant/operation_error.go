package qdrant

import (
	"fmt"

	"github.com/guptaanant682/memorybank-backend/internal/platform/httpx"
)

type OperationErrorKind string

const (
	OperationErrorValidation  OperationErrorKind = "validation"
	OperationErrorTransport   OperationErrorKind = "transport"
	OperationErrorRemote      OperationErrorKind = "remote"
	OperationErrorUnavailable OperationErrorKind = "unavailable"
)

type OperationError struct {
	Op     string
	Kind   OperationErrorKind
	Status int
	Msg    string
	Err    error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant operation failed"
	}
	if e.Msg != "" {
		return fmt.Sprintf("qdrant %s: %s", e.Op, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("qdrant %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("qdrant %s failed", e.Op)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *OperationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// Retryable reports whether the caller should retry with backoff.
// Validation failures and remote 4xx responses are permanent.
func (e *OperationError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case OperationErrorValidation:
		return false
	case OperationErrorTransport, OperationErrorUnavailable:
		return true
	default:
		return httpx.IsRetryableHTTPStatus(e.Status)
	}
}

func opErr(op string, kind OperationErrorKind, msg string, err error) *OperationError {
	return &OperationError{Op: op, Kind: kind, Msg: msg, Err: err}
}
