package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

// Admin exposes operator-only credential maintenance used by credctl.
type Admin struct {
	svc *AuthService
}

// Admin returns the maintenance view of the service.
func (s *AuthService) Admin() *Admin {
	return &Admin{svc: s}
}

// SetPassword overwrites the login password without any other credential.
func (a *Admin) SetPassword(ctx context.Context, username, password string) error {
	if err := a.svc.checkNewPassword(password, username); err != nil {
		return err
	}
	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	hash, err := a.svc.hasher.Hash(password)
	if err != nil {
		return err
	}
	return a.svc.store.UpdatePasswordHash(ctx, user.ID, hash)
}

// SetRecoveryKey replaces the recovery key.
func (a *Admin) SetRecoveryKey(ctx context.Context, username, key string) error {
	if key == "" {
		return invalid("recovery key is required")
	}
	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	hash, err := a.svc.hasher.Hash(key)
	if err != nil {
		return err
	}
	return a.svc.store.UpdateRecoveryKeyHash(ctx, user.ID, hash)
}

// LinkEmail sets the address OTP codes are mailed to.
func (a *Admin) LinkEmail(ctx context.Context, username, email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return invalid("invalid email address")
	}
	user, err := a.lookup(ctx, username)
	if err != nil {
		return err
	}
	return a.svc.store.UpdateEmail(ctx, user.ID, addr.Address)
}

// BackfillRecoveryKeys gives every account without a recovery key the default one.
func (a *Admin) BackfillRecoveryKeys(ctx context.Context) (int64, error) {
	hash, err := a.svc.hasher.Hash(DefaultRecoveryKey)
	if err != nil {
		return 0, err
	}
	return a.svc.store.BackfillRecoveryKeys(ctx, hash)
}

func (a *Admin) lookup(ctx context.Context, username string) (models.User, error) {
	if username == "" {
		return models.User{}, invalid("username is required")
	}
	user, err := a.svc.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
