package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode names an outcome callers can branch on
type ErrorCode string

const (
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Login and session outcomes
	ErrCodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired      ErrorCode = "SESSION_EXPIRED"
	ErrCodeAccountSuspended    ErrorCode = "ACCOUNT_SUSPENDED"
	ErrCodeDeviceLimitExceeded ErrorCode = "DEVICE_LIMIT_EXCEEDED"
)

// Detail keys carried by device-limit errors.
const (
	DetailMaxDevices     = "max_devices"
	DetailActiveSessions = "active_sessions"
)

var httpStatus = map[ErrorCode]int{
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeValidationFailed:    http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeInvalidCredentials:  http.StatusUnauthorized,
	ErrCodeSessionExpired:      http.StatusUnauthorized,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeAccountSuspended:    http.StatusForbidden,
	ErrCodeDeviceLimitExceeded: http.StatusForbidden,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeRateLimitExceeded:   http.StatusTooManyRequests,
}

// Error is an outcome with a code, a message safe to show to clients and
// optional details. Err keeps the cause for logs.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail sets one detail and returns e
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches code and message to err; a nil err stays nil
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsCode reports whether err, or anything it wraps, is an *Error with code
func IsCode(err error, code ErrorCode) bool {
	e, ok := asError(err)
	return ok && e.Code == code
}

// GetCode is ErrCodeInternal for errors without a code
func GetCode(err error) ErrorCode {
	if e, ok := asError(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

func GetDetails(err error) map[string]interface{} {
	if e, ok := asError(err); ok {
		return e.Details
	}
	return nil
}

// GetMessage is the client message of a coded error, or err.Error() otherwise
func GetMessage(err error) string {
	if e, ok := asError(err); ok {
		return e.Message
	}
	return err.Error()
}

// MapErrorCodeToHTTPStatus is 500 for ErrCodeInternal and unknown codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func NotFound(resourceType, identifier string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resourceType, identifier))
}

func AlreadyExists(resourceType, identifier string) *Error {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists: %s", resourceType, identifier))
}

// InvalidInput is for request bodies that cannot be decoded
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// InternalWrap marks err as a store or infrastructure failure
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}

// ValidationFailed names the offending field in the "field" detail
func ValidationFailed(field, message string) *Error {
	return New(ErrCodeValidationFailed, message).WithDetail("field", field)
}

// InvalidCredentials is returned for an unknown email and for a wrong secret alike.
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, "invalid email or password")
}

// AccountSuspended is returned when the account exists but is deactivated.
func AccountSuspended() *Error {
	return New(ErrCodeAccountSuspended, "account is suspended, contact an administrator")
}

// SessionExpired is returned when a token does not resolve to a live session.
func SessionExpired() *Error {
	return New(ErrCodeSessionExpired, "invalid or expired session")
}

// DeviceLimitExceeded carries the cap and the live session count at rejection time.
func DeviceLimitExceeded(maxDevices, activeSessions int) *Error {
	return New(ErrCodeDeviceLimitExceeded, "device limit exceeded").
		WithDetail(DetailMaxDevices, maxDevices).
		WithDetail(DetailActiveSessions, activeSessions)
}

// RateLimitExceeded carries the Retry-After seconds when known
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}
