package qdrant

import (
	"fmt"
	"strings"
)

// OperationErrorCode classifies store failures for callers that branch on
// cause rather than message text.
type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
)

// OperationError is the typed failure every store call returns: the
// operation, its classification, and the upstream HTTP status when one was
// received. Message takes precedence over Cause in the rendered text; Cause
// stays reachable through Unwrap either way.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant: operation failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "qdrant: %s failed (code=%s", e.Operation, e.Code)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	b.WriteByte(')')
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Cause != nil:
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HTTPStatusCode lets httpx retry classification see the upstream status.
func (e *OperationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func opErr(op string, code OperationErrorCode, msg string, cause error) *OperationError {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}
