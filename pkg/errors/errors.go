package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeTransport         ErrorType = "transport"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeParsing           ErrorType = "parsing"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeCheckpointCorrupt ErrorType = "checkpoint_corrupt"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error represents a pipeline error with type information and the resource
// that was being fetched when it occurred.
type Error struct {
	Type     ErrorType
	Resource string
	Message  string
	Code     int
	Err      error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s error (code %d) on %s: %s", e.Type, e.Code, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from an error chain, if present.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeCheckpointCorrupt:
		return false
	default:
		return false
	}
}

// IsRetryableError checks the error chain for a typed error whose type
// should be retried. Untyped errors are not retried.
func IsRetryableError(err error) bool {
	if e, ok := AsError(err); ok {
		return IsRetryable(e.Type)
	}
	return false
}
