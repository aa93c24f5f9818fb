package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

// ResetPasswordWithRecoveryKey sets a new password when key matches the
// account's recovery key hash.
func (s *AuthService) ResetPasswordWithRecoveryKey(ctx context.Context, username, key, newPassword string) error {
	if username == "" || key == "" || newPassword == "" {
		return invalid("All fields are required")
	}
	if err := s.checkNewPassword(newPassword, username); err != nil {
		return err
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.RecoveryKeyHash == nil || *user.RecoveryKeyHash == "" {
		return ErrRecoveryNotConfigured
	}
	if !s.hasher.Compare(*user.RecoveryKeyHash, key) {
		return ErrInvalidRecoveryKey
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	logger.WithContext(ctx, s.logger).Info("password reset with recovery key", zap.Int64("user_id", user.ID))
	return nil
}

// RequestOTP issues a fresh one-time code for username and mails it. Unknown
// usernames succeed silently. Mail failures are logged with the code so an
// operator can finish the recovery by hand.
func (s *AuthService) RequestOTP(ctx context.Context, username string) error {
	if username == "" {
		return invalid("Username is required")
	}
	log := logger.WithContext(ctx, s.logger)

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("otp requested for unknown username")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.HasEmail() {
		return ErrNoEmailLinked
	}

	code, err := s.newCode()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.otpTTL)
	if err := s.store.SetOTP(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, *user.Email, code, expiresAt); err != nil {
		log.Warn("otp delivery failed, code logged for manual recovery",
			zap.Int64("user_id", user.ID),
			zap.String("username", user.Username),
			zap.String("otp", code),
			zap.Time("expires_at", expiresAt),
			zap.Error(err),
		)
		return nil
	}
	log.Info("otp sent", zap.Int64("user_id", user.ID), zap.String("email", logger.MaskEmail(*user.Email)))
	return nil
}

// ResetPasswordWithOTP consumes the pending OTP and sets a new password in
// the same write. A code can succeed at most once.
func (s *AuthService) ResetPasswordWithOTP(ctx context.Context, username, code, newPassword string) error {
	if username == "" || code == "" || newPassword == "" {
		return invalid("All fields are required")
	}
	if err := s.checkNewPassword(newPassword, username); err != nil {
		return err
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidRequest
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.OTPPending() {
		return ErrNoOTPPending
	}
	if s.now().After(*user.OTPExpiresAt) {
		return ErrOTPExpired
	}
	if !s.hasher.Compare(*user.OTPHash, code) {
		return ErrInvalidOTP
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.ConsumeOTP(ctx, user.ID, *user.OTPHash, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoOTPPending
		}
		return fmt.Errorf("consume otp: %w", err)
	}
	logger.WithContext(ctx, s.logger).Info("password reset with otp", zap.Int64("user_id", user.ID))
	return nil
}
