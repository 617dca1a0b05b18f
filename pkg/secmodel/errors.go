package secmodel

import (
	"errors"
	"fmt"
	"net/http"
)

// Security error codes.
const (
	ErrCodeUnauthorized = "security.unauthorized"  // Path or permission check denied access
	ErrCodeInvalidMode  = "security.invalid_mode"  // Unrecognized authentication mode requested
	ErrCodeCacheWrite   = "security.cache_write"   // Snapshot could not be persisted
	ErrCodeModelFailure = "security.model_failure" // Backing model failed to answer
)

// httpStatusMap maps error codes to HTTP status codes. Unauthorized maps to
// 403 here; the request gate upgrades it to 401 with a challenge when an HTTP
// authenticator is active and no user is identified.
var httpStatusMap = map[string]int{
	ErrCodeUnauthorized: http.StatusForbidden,           // 403
	ErrCodeInvalidMode:  http.StatusInternalServerError, // 500
	ErrCodeCacheWrite:   http.StatusInternalServerError, // 500
	ErrCodeModelFailure: http.StatusInternalServerError, // 500
}

// SecurityError is an error with a structured code and HTTP status mapping.
type SecurityError struct {
	Code    string // One of the ErrCode* constants
	Message string // Human-readable error description
	Status  int    // HTTP status code
	wrapped error
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code for this error.
func (e *SecurityError) HTTPStatus() int {
	return e.Status
}

// Unwrap allows errors.Is and errors.As to reach a wrapped cause.
func (e *SecurityError) Unwrap() error {
	return e.wrapped
}

func newError(code, message string) *SecurityError {
	return &SecurityError{
		Code:    code,
		Message: message,
		Status:  httpStatusMap[code],
	}
}

// ErrUnauthorized creates the denial error raised by the request gate. It
// deliberately carries no detail beyond "denied": the reason a check failed
// must not leak to the caller.
func ErrUnauthorized() *SecurityError {
	return newError(ErrCodeUnauthorized, "access denied")
}

// ErrInvalidMode creates the setup-time error for an unrecognized
// authentication mode. Fatal at configuration time, never retried.
func ErrInvalidMode(mode string) *SecurityError {
	return newError(ErrCodeInvalidMode, fmt.Sprintf("invalid authentication mode %q", mode))
}

// ErrCacheWriteFailure wraps a snapshot persistence failure.
func ErrCacheWriteFailure(err error) *SecurityError {
	e := newError(ErrCodeCacheWrite, fmt.Sprintf("failed to write security snapshot: %v", err))
	e.wrapped = err
	return e
}

// IsUnauthorized reports whether err is a denial raised by the request gate.
func IsUnauthorized(err error) bool {
	var secErr *SecurityError
	return errors.As(err, &secErr) && secErr.Code == ErrCodeUnauthorized
}

// ErrorCode extracts the security error code, or "" for other errors.
func ErrorCode(err error) string {
	var secErr *SecurityError
	if errors.As(err, &secErr) {
		return secErr.Code
	}
	return ""
}
