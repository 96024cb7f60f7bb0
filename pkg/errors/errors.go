package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur during
// an extraction session.
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeBlocked    ErrorType = "blocked"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error represents a session error with type information.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a typed error around an underlying cause.
func Wrap(errorType ErrorType, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Cause: cause}
}

// Class is the retry classification of a failure. The retry executor
// never inspects concrete error types itself; it asks a classifier for
// one of these.
type Class int

const (
	// ClassRetryable marks transient failures worth another attempt.
	ClassRetryable Class = iota
	// ClassFatal marks failures that can never succeed on retry.
	ClassFatal
)

// IsRetryable reports whether an error type should be retried.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeBlocked, ErrorTypeIO:
		return true
	case ErrorTypeValidation, ErrorTypeExtraction:
		return false
	default:
		return false
	}
}

// Classify is the default classifier used at the retry boundary.
// Context cancellation and validation/extraction errors are fatal;
// network-shaped failures are retryable; unknown errors default to
// retryable so a transient hiccup from a collaborator is not given up on.
func Classify(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	var typed *Error
	if errors.As(err, &typed) {
		if IsRetryable(typed.Type) {
			return ClassRetryable
		}
		return ClassFatal
	}

	return ClassRetryable
}

// TypeOf returns the error type of err, or ErrorTypeUnknown when err is
// not a typed error.
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}
