// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid algo parameters, configuration and orders
//   - Storage errors (200-299): State records and signal storage
//   - Indicator errors (300-399): Indicator lookup and readiness
//   - Algo order errors (400-499): Definitions, instances, handlers and the signal tracer
//   - Exchange errors (500-599): Order submission, cancellation and market data subscriptions
//   - Market data errors (700-799): Market data fetching and parsing errors
//
// Usage:
//
//	// A definition that cannot be registered
//	err := errors.New(errors.ErrCodeInvalidConfiguration, "algo order definition has no order handlers")
//
//	// Parameters rejected before an instance exists
//	err := errors.Newf(errors.ErrCodeInvalidParameter, "slice amount %f exceeds total amount", slice)
//
//	// Wrap an exchange failure
//	err := errors.Wrap(errors.ErrCodeOrderFailed, "failed to submit order", originalErr)
//
//	// Classify it
//	if errors.HasCode(err, errors.ErrCodeInsufficientBalance) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsExchangeError reports whether err carries one of the exchange error codes (500-599).
func IsExchangeError(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeOrderFailed && code < 600
}

// IsValidationError reports whether err carries one of the validation error codes (100-199).
func IsValidationError(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeInvalidParameter && code < 200
}
