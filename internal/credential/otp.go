package credential

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// CodeGenerator produces one-time codes.
type CodeGenerator func() (string, error)

// NewOTP returns a uniformly random six digit code in [100000, 999999].
func NewOTP() (string, error) {
	return newOTPFrom(rand.Reader)
}

func newOTPFrom(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
