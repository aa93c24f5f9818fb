package service

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrRegistrationDisabled  = errors.New("registration disabled, users already exist")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidOldPin         = errors.New("invalid old PIN")
	ErrInvalidPinLength      = errors.New("PIN must be 4-10 characters")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrWeakPassword          = errors.New("password must be at least 6 characters")
	ErrGuessablePassword     = errors.New("password is too easy to guess")
	ErrRecoveryNotConfigured = errors.New("recovery key not set for this account")
	ErrInvalidRecoveryKey    = errors.New("invalid recovery key")
	ErrNoEmailLinked         = errors.New("no email linked to this account")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrNoOTPPending          = errors.New("no OTP request pending")
	ErrOTPExpired            = errors.New("OTP has expired")
	ErrInvalidOTP            = errors.New("invalid OTP")
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
