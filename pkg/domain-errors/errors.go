// Package derrors defines the domain error taxonomy. Services return these;
// the HTTP layer translates codes to status codes in one place. Stores do
// not use this package directly: they return pkg/platform/sentinel errors
// which services wrap with a code here.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error kind.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeQuotaExceeded     Code = "quota_exceeded"
	CodeRequestInFlight   Code = "request_in_flight"
	CodeInvalidTransition Code = "invalid_transition"
	CodeAnalyzerTransient Code = "analyzer_transient"
	CodeAnalyzerPermanent Code = "analyzer_permanent"
	CodeConflict          Code = "conflict"
	CodeInternal          Code = "internal"
)

// Error carries a code plus a human-readable message, optionally wrapping a
// cause for logging. The message is safe to surface to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a domain error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer emits.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeQuotaExceeded:
		return http.StatusPaymentRequired
	case CodeRequestInFlight, CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeAnalyzerTransient:
		return http.StatusBadGateway
	case CodeAnalyzerPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
