// Package llmerrors provides error classification for generation-service
// interactions. Classification is a best-effort heuristic over error message
// text; it informs retry and recovery decisions but must not gate
// correctness-critical logic.
package llmerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes failures across the generation workflow.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (window exhausted, 429, quota).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeNetwork represents connectivity failures (connection refused, DNS, offline).
	ErrorTypeNetwork
	// ErrorTypeService represents generation-service failures (timeout, unavailable model, 5xx).
	ErrorTypeService
	// ErrorTypeValidation represents input-validation failures. Never retried.
	ErrorTypeValidation
	// ErrorTypeParsing represents response-parsing failures (malformed JSON). Never retried.
	ErrorTypeParsing
	// ErrorTypeSession represents session-integrity failures.
	ErrorTypeSession
	// ErrorTypeExport represents export/save failures.
	ErrorTypeExport
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeService:
		return "service"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeParsing:
		return "parsing"
	case ErrorTypeSession:
		return "session"
	case ErrorTypeExport:
		return "export"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified generation error.
type Error struct {
	Err     error     // Wrapped underlying error
	Message string    // Human-readable error message
	Type    ErrorType // Classified error type
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("generation error (%s): %s", e.Type.String(), e.Message)
	}
	return fmt.Sprintf("generation error (%s): %v", e.Type.String(), e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether this error type may be retried.
// Uses a blocklist: validation and parsing failures cannot be fixed by
// retrying, everything else may be transient.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeParsing:
		return false
	default:
		return true
	}
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// Is checks if an error carries a specific classified type.
func Is(err error, errorType ErrorType) bool {
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr.Type == errorType
	}
	return false
}

// TypeOf returns the classified type of an error. Errors without an explicit
// classification are classified from their message text.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr.Type
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage maps error message text to an error type by substring
// matching over the lowercased message. Categories are tested in priority
// order so that, e.g., "rate limit timeout" classifies as rate limiting.
func ClassifyMessage(message string) ErrorType {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, "rate limit", "rate-limit", "too many requests", "429", "quota"):
		return ErrorTypeRateLimit
	case containsAny(msg, "network", "connection", "econnrefused", "dns", "offline", "unreachable"):
		return ErrorTypeNetwork
	case containsAny(msg, "timeout", "timed out", "ai service", "generation service", "service unavailable", "no model"):
		return ErrorTypeService
	case containsAny(msg, "validation", "invalid", "required field", "must not be empty"):
		return ErrorTypeValidation
	case containsAny(msg, "parse", "parsing", "json", "unmarshal", "malformed"):
		return ErrorTypeParsing
	case containsAny(msg, "session", "state", "corrupt"):
		return ErrorTypeSession
	case containsAny(msg, "export", "save", "write file"):
		return ErrorTypeExport
	default:
		return ErrorTypeUnknown
	}
}

// Classify wraps err in a classified *Error. Already-classified errors are
// returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr
	}
	return &Error{
		Type: ClassifyMessage(err.Error()),
		Err:  err,
	}
}

// IsRetryable reports whether an arbitrary error may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).IsRetryable()
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
