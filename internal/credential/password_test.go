package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordPolicyLength(t *testing.T) {
	p := PasswordPolicy{MinLength: 6}

	assert.ErrorIs(t, p.Check("12345"), ErrPasswordTooShort)
	assert.NoError(t, p.Check("123456"))
	assert.NoError(t, p.Check("пароль"), "length counts characters, not bytes")
}

func TestPasswordPolicyStrength(t *testing.T) {
	p := PasswordPolicy{MinLength: 6, MinScore: 3}

	assert.ErrorIs(t, p.Check("password"), ErrPasswordTooGuessable)
	assert.ErrorIs(t, p.Check("shopadmin1", "shopadmin"), ErrPasswordTooGuessable)
	assert.NoError(t, p.Check("correct-horse-battery-staple-42"))
}
