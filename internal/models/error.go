package models

import (
	"errors"
	"net/http"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadRequest        = errors.New("bad request")
	ErrValidation        = errors.New("validation failed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInternalServer    = errors.New("internal server error")

	// OTP state errors
	ErrOTPExpired      = errors.New("otp expired")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrInvalidCode     = errors.New("invalid otp code")
)

// AuthError is returned by the auth orchestrator. It carries the HTTP status
// and the user-facing message alongside the underlying sentinel.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError for the given sentinel
func NewAuthError(status int, message string, err error) *AuthError {
	return &AuthError{Status: status, Message: message, Err: err}
}

// ValidationError reports a malformed identifier, code or request field
func ValidationError(message string) *AuthError {
	return NewAuthError(http.StatusBadRequest, message, ErrValidation)
}

// InternalError hides storage and dispatch detail behind a generic message
func InternalError() *AuthError {
	return NewAuthError(http.StatusInternalServerError, "Internal server error", ErrInternalServer)
}
