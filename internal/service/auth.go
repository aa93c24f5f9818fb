package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/notify"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

const (
	// DefaultRecoveryKey is hashed onto every newly registered account.
	DefaultRecoveryKey = "secret"

	MinPasswordLength = 6
	DefaultOTPTTL     = 10 * time.Minute
)

// Session is the result of a successful login or registration.
type Session struct {
	Token string
	User  models.PublicUser
}

// AuthService implements login, bootstrap registration, PIN management and
// both password recovery paths.
type AuthService struct {
	store   storage.UserStore
	tokens  *auth.TokenManager
	hasher  credential.Hasher
	mailer  notify.Mailer
	logger  *zap.Logger
	now     func() time.Time
	newCode credential.CodeGenerator
	otpTTL  time.Duration
	policy  credential.PasswordPolicy
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator overrides OTP generation.
func WithCodeGenerator(gen credential.CodeGenerator) Option {
	return func(s *AuthService) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// WithOTPTTL sets the OTP lifetime.
func WithOTPTTL(ttl time.Duration) Option {
	return func(s *AuthService) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

// WithPasswordStrength requires new passwords to reach a zxcvbn score.
func WithPasswordStrength(minScore int) Option {
	return func(s *AuthService) {
		s.policy.MinScore = minScore
	}
}

// NewAuthService wires the service. A nil mailer disables delivery and a nil
// logger discards output.
func NewAuthService(store storage.UserStore, tokens *auth.TokenManager, hasher credential.Hasher, mailer notify.Mailer, log *zap.Logger, opts ...Option) *AuthService {
	if mailer == nil {
		mailer = notify.Disabled{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &AuthService{
		store:   store,
		tokens:  tokens,
		hasher:  hasher,
		mailer:  mailer,
		logger:  log,
		now:     time.Now,
		newCode: credential.NewOTP,
		otpTTL:  DefaultOTPTTL,
		policy:  credential.PasswordPolicy{MinLength: MinPasswordLength},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates username/password and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, invalid("Username and password required")
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Register creates the single admin account. It fails with
// ErrRegistrationDisabled once any user exists.
func (s *AuthService) Register(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, invalid("Username and password required")
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, err
	}
	pin, err := credential.HashedPin(s.hasher, credential.DefaultPin)
	if err != nil {
		return Session{}, err
	}
	recoveryHash, err := s.hasher.Hash(DefaultRecoveryKey)
	if err != nil {
		return Session{}, err
	}

	created, err := s.store.CreateFirstUser(ctx, models.User{
		Username:        username,
		PasswordHash:    passwordHash,
		Pin:             pin.Stored(),
		RecoveryKeyHash: &recoveryHash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Session{}, ErrRegistrationDisabled
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	logger.WithContext(ctx, s.logger).Info("admin account registered", zap.Int64("user_id", created.ID))
	return s.issue(created)
}

// Authenticate resolves a bearer token to an identity.
func (s *AuthService) Authenticate(token string) (auth.Identity, error) {
	return s.tokens.Parse(token)
}

func (s *AuthService) issue(user models.User) (Session, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	return Session{Token: token, User: user.Public()}, nil
}

func (s *AuthService) userByID(ctx context.Context, id int64) (models.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *AuthService) checkNewPassword(password string, userInputs ...string) error {
	switch err := s.policy.Check(password, userInputs...); {
	case errors.Is(err, credential.ErrPasswordTooShort):
		return ErrWeakPassword
	case errors.Is(err, credential.ErrPasswordTooGuessable):
		return ErrGuessablePassword
	default:
		return err
	}
}
