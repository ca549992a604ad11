// Package errors provides the structured error taxonomy used across matchcore.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Code identifies the category of a matching-engine error.
type Code string

const (
	// Protocol errors — malformed frame, length overrun, oversize frame,
	// unknown type while unauthenticated. Always terminal for a session.
	ErrProtocolViolation Code = "PROTOCOL_VIOLATION"
	ErrFrameTooLarge     Code = "FRAME_TOO_LARGE"
	ErrUnknownMessage    Code = "UNKNOWN_MESSAGE"

	// Validation errors — rejected with an execution report, engine state
	// untouched.
	ErrValidationFailed Code = "VALIDATION_FAILED"
	ErrInvalidPrice     Code = "INVALID_PRICE"
	ErrInvalidQuantity  Code = "INVALID_QUANTITY"
	ErrSymbolTooLong    Code = "SYMBOL_TOO_LONG"

	// Not-found errors.
	ErrOrderNotFound Code = "ORDER_NOT_FOUND"

	// Transport errors.
	ErrTransportClosed Code = "TRANSPORT_CLOSED"

	// Internal invariant violations — defensive checks only, never
	// user-reachable.
	ErrInternalInvariant Code = "INTERNAL_INVARIANT"

	// Configuration errors.
	ErrConfiguration Code = "CONFIGURATION"
)

// Severity ranks how urgently an error needs operator attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// MatchError is the structured error type returned by every matchcore package.
type MatchError struct {
	Code      Code
	Message   string
	Severity  Severity
	Timestamp time.Time
	File      string
	Line      int
	Cause     error
}

func (e *MatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As from the standard
// library.
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// New creates a MatchError with the default severity for code.
func New(code Code, message string) *MatchError {
	_, file, line, _ := runtime.Caller(1)
	return &MatchError{
		Code:      code,
		Message:   message,
		Severity:  severityFor(code),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// Newf creates a MatchError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *MatchError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error in a MatchError. Returns nil if err is nil.
func Wrap(err error, code Code, message string) *MatchError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &MatchError{
		Code:      code,
		Message:   message,
		Severity:  severityFor(code),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Cause:     err,
	}
}

// Is reports whether err is a MatchError with the given code.
func Is(err error, code Code) bool {
	me, ok := err.(*MatchError)
	if !ok {
		return false
	}
	return me.Code == code
}

// GetCode extracts the error code from err, or "" if err is not a MatchError.
func GetCode(err error) Code {
	if me, ok := err.(*MatchError); ok {
		return me.Code
	}
	return ""
}

func severityFor(code Code) Severity {
	switch code {
	case ErrInternalInvariant, ErrConfiguration:
		return SeverityCritical
	case ErrProtocolViolation, ErrFrameTooLarge, ErrTransportClosed:
		return SeverityHigh
	case ErrValidationFailed, ErrInvalidPrice, ErrInvalidQuantity, ErrSymbolTooLong, ErrOrderNotFound, ErrUnknownMessage:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
