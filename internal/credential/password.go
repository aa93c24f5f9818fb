package credential

import (
	"errors"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

var (
	ErrPasswordTooShort     = errors.New("password too short")
	ErrPasswordTooGuessable = errors.New("password too easy to guess")
)

// PasswordPolicy applies to passwords set through a reset. MinScore is a
// zxcvbn score from 0 to 4; zero disables the strength check.
type PasswordPolicy struct {
	MinLength int
	MinScore  int
}

// Check validates password. userInputs are values the password should not
// be derived from, such as the username.
func (p PasswordPolicy) Check(password string, userInputs ...string) error {
	if utf8.RuneCountInString(password) < p.MinLength {
		return ErrPasswordTooShort
	}
	if p.MinScore <= 0 {
		return nil
	}
	if zxcvbn.PasswordStrength(password, userInputs).Score < min(p.MinScore, 4) {
		return ErrPasswordTooGuessable
	}
	return nil
}
