// Package apperror defines the typed errors raised by services and guards and
// the JSON envelope they are rendered into at the HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimited         = "RATE_LIMITED"
	CodeOTPLimitReached     = "OTP_LIMIT_REACHED"
	CodeOTPExpired          = "OTP_EXPIRED"
	CodeOTPAttemptsExceeded = "OTP_ATTEMPTS_EXCEEDED"
	CodeInvalidOTP          = "INVALID_OTP"
	CodeOutsideDeliveryZone = "OUTSIDE_DELIVERY_ZONE"
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
	CodeDBUnavailable       = "DB_UNAVAILABLE"
	CodeCORSBlocked         = "CORS_BLOCKED"
)

// Error is a domain failure carrying its HTTP status and client-facing code.
// Err holds the underlying cause; it is logged but never rendered.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying structured details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Envelope is the uniform error body.
type Envelope struct {
	Error Body `json:"error"`
}

type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToEnvelope renders err for clients. Errors that are not *Error become a
// generic 500 so internals never leak.
func ToEnvelope(err error) (int, Envelope) {
	appErr, ok := As(err)
	if !ok {
		appErr = Internal(err)
	}
	return appErr.Status, Envelope{Error: Body{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}}
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func RateLimited(message string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, message)
}

func CORSBlocked(origin string) *Error {
	return New(http.StatusForbidden, CodeCORSBlocked, "Origin not allowed").
		WithDetails(map[string]string{"origin": origin})
}

// Internal wraps an unexpected fault.
func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// DBUnavailable wraps a persistence fault.
func DBUnavailable(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeDBUnavailable,
		Message: "Database unavailable",
		Err:     err,
	}
}
