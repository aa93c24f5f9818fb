// Package credential holds the hashing rules shared by passwords, PINs,
// recovery keys and one-time codes.
package credential

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// hashPrefix marks a bcrypt digest ($2a$, $2b$, $2y$).
const hashPrefix = "$2"

// maxSecretBytes is the most bcrypt reads; longer input is truncated.
const maxSecretBytes = 72

// Hasher wraps bcrypt with a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash returns the bcrypt digest of secret.
func (h Hasher) Hash(secret string) (string, error) {
	cost := h.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(secret), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether secret matches hash. Malformed hashes never match.
func (h Hasher) Compare(hash, secret string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(secret))
	return err == nil
}

// compareCheck is Compare but surfaces errors other than a plain mismatch.
func (h Hasher) compareCheck(hash, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt compare: %w", err)
	}
}

// IsHash reports whether stored looks like a bcrypt digest.
func IsHash(stored string) bool {
	return strings.HasPrefix(stored, hashPrefix)
}

func bcryptInput(secret string) []byte {
	b := []byte(secret)
	if len(b) > maxSecretBytes {
		b = b[:maxSecretBytes]
	}
	return b
}

func equalPlain(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
