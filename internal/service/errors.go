package service

import (
	"errors"
	"fmt"
)

var (
	ErrOTPNotFound         = errors.New("otp not found or already used")
	ErrOTPMismatch         = errors.New("incorrect otp")
	ErrOTPExpired          = errors.New("otp expired")
	ErrMissingEmail        = errors.New("email is required")
	ErrEmailSendFailure    = errors.New("email send failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrAlreadyExists       = errors.New("user with this email, mobile or aadhaar already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")
	ErrTokenInvalid        = errors.New("token invalid")
	ErrTokenExpired        = errors.New("token expired")
)

// ValidationError describe un campo de entrada malformado.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsOTPFailure agrupa los tres motivos por los que un codigo no se acepta.
func IsOTPFailure(err error) bool {
	return errors.Is(err, ErrOTPNotFound) || errors.Is(err, ErrOTPMismatch) || errors.Is(err, ErrOTPExpired)
}
