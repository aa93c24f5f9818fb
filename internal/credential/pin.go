package credential

import (
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultPin is assigned at registration and on password-confirmed reset.
	DefaultPin = "1234"

	MinPinLength = 4
	MaxPinLength = 10
)

// Pin is either a bcrypt digest or a legacy plaintext value left over from
// rows written before PINs were hashed.
type Pin struct {
	value  string
	hashed bool
}

// ParsePin classifies a stored column value.
func ParsePin(stored string) Pin {
	return Pin{value: stored, hashed: IsHash(stored)}
}

// HashedPin hashes raw into a new Pin.
func HashedPin(h Hasher, raw string) (Pin, error) {
	hash, err := h.Hash(raw)
	if err != nil {
		return Pin{}, fmt.Errorf("hash pin: %w", err)
	}
	return Pin{value: hash, hashed: true}, nil
}

// Stored returns the representation to persist.
func (p Pin) Stored() string { return p.value }

// IsLegacy reports whether the PIN is still plaintext.
func (p Pin) IsLegacy() bool { return !p.hashed && p.value != "" }

// IsZero reports whether nothing is stored.
func (p Pin) IsZero() bool { return p.value == "" }

// VerifyPin checks input against p. When p is a legacy plaintext PIN and
// input matches, the returned *Pin is the hashed replacement the caller must
// persist; it is nil in every other case.
func VerifyPin(h Hasher, p Pin, input string) (bool, *Pin, error) {
	if p.IsZero() || input == "" {
		return false, nil, nil
	}
	if p.hashed {
		ok, err := h.compareCheck(p.value, input)
		return ok, nil, err
	}
	if !equalPlain(p.value, input) {
		return false, nil, nil
	}
	upgraded, err := HashedPin(h, input)
	if err != nil {
		return true, nil, err
	}
	return true, &upgraded, nil
}

// MatchPin is VerifyPin without producing a migration.
func MatchPin(h Hasher, p Pin, input string) (bool, error) {
	if p.IsZero() || input == "" {
		return false, nil
	}
	if p.hashed {
		return h.compareCheck(p.value, input)
	}
	return equalPlain(p.value, input), nil
}

// ValidPinLength reports whether pin has between MinPinLength and MaxPinLength characters.
func ValidPinLength(pin string) bool {
	n := utf8.RuneCountInString(pin)
	return n >= MinPinLength && n <= MaxPinLength
}
