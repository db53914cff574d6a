// Package errors carries the storefront's typed error codes. Handlers return
// *Error values; api/responses turns them into the JSON error envelope.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	// CodeDependency is our own infrastructure (postgres, redis) failing.
	CodeDependency Code = "DEPENDENCY_ERROR"
	// CodeGateway is an upstream payment provider failure. Never retried.
	CodeGateway Code = "PAYMENT_GATEWAY_ERROR"
)

// Metadata is the response policy attached to a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, public string, retryable, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, Retryable: retryable, DetailsAllowed: details}
}

var registry = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", false, true),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", false, true),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", false, true),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", false, true),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", false, false),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", true, false),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", true, true),
	CodeGateway:       meta(http.StatusInternalServerError, "payment gateway error", false, true),
}

// MetadataFor returns the policy for code; unknown codes are treated as internal.
func MetadataFor(code Code) Metadata {
	if m, ok := registry[code]; ok {
		return m
	}
	return registry[CodeInternal]
}

// Error is a coded error with an optional cause and client-safe details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the details shown to clients when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

// Retryable reports whether a client may usefully retry after err. Untyped
// errors count as internal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).codeOr(CodeInternal)).Retryable
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
