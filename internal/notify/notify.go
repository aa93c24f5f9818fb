// Package notify delivers one-time codes to account owners.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrDeliveryDisabled is returned when no transport is configured.
var ErrDeliveryDisabled = errors.New("otp delivery disabled")

// Mailer sends OTP codes out of band.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
}

// Disabled is a Mailer that always reports ErrDeliveryDisabled, leaving the
// caller to fall back to its own handling.
type Disabled struct{}

func (Disabled) SendOTP(context.Context, string, string, time.Time) error {
	return ErrDeliveryDisabled
}
