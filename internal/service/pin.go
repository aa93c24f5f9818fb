package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

// VerifyPin checks pin for the user. A matching legacy plaintext PIN is
// rewritten as a hash before returning.
func (s *AuthService) VerifyPin(ctx context.Context, userID int64, pin string) (bool, error) {
	if pin == "" {
		return false, invalid("PIN required")
	}
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return false, err
	}

	stored := credential.ParsePin(user.Pin)
	ok, upgraded, err := credential.VerifyPin(s.hasher, stored, pin)
	if err != nil {
		return false, fmt.Errorf("verify pin: %w", err)
	}
	if upgraded != nil {
		err := s.store.UpgradeLegacyPin(ctx, userID, stored.Stored(), upgraded.Stored())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// another request migrated or replaced it first
		case err != nil:
			return false, fmt.Errorf("upgrade legacy pin: %w", err)
		default:
			logger.WithContext(ctx, s.logger).Info("legacy pin migrated to hash", zap.Int64("user_id", userID))
		}
	}
	return ok, nil
}

// ChangePin replaces the PIN after checking the old one. Legacy values are
// accepted for the old PIN but not migrated here.
func (s *AuthService) ChangePin(ctx context.Context, userID int64, oldPin, newPin string) error {
	if oldPin == "" || newPin == "" {
		return invalid("Old and New PIN required")
	}
	if !credential.ValidPinLength(newPin) {
		return ErrInvalidPinLength
	}
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := credential.MatchPin(s.hasher, credential.ParsePin(user.Pin), oldPin)
	if err != nil {
		return fmt.Errorf("verify pin: %w", err)
	}
	if !ok {
		return ErrInvalidOldPin
	}

	next, err := credential.HashedPin(s.hasher, newPin)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePin(ctx, userID, next.Stored()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update pin: %w", err)
	}
	return nil
}

// ResetPin restores the default PIN after a password step-up and returns the
// plaintext default so the owner knows what it is.
func (s *AuthService) ResetPin(ctx context.Context, userID int64, password string) (string, error) {
	if password == "" {
		return "", invalid("Password required")
	}
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return "", ErrInvalidPassword
	}

	pin, err := credential.HashedPin(s.hasher, credential.DefaultPin)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdatePin(ctx, userID, pin.Stored()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("reset pin: %w", err)
	}
	return credential.DefaultPin, nil
}

// CurrentPin returns the stored PIN representation, or the default when none is set.
func (s *AuthService) CurrentPin(ctx context.Context, userID int64) (string, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Pin == "" {
		return credential.DefaultPin, nil
	}
	return user.Pin, nil
}
