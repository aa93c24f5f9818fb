package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

const usersTable = "users"

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"COALESCE(pin, '')",
	"recovery_key_hash",
	"otp_hash",
	"otp_expires_at",
	"created_at",
}

type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres-backed persistence for the credential record.
type Store struct {
	pool    *pgxpool.Pool
	exec    executor
	builder squirrel.StatementBuilderType
}

// NewUserStore connects to databaseURL, applies migrations and returns a Store.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := NewStore(pool)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// NewStore wraps an existing executor such as a pool, transaction or pgxmock.
func NewStore(exec executor) *Store {
	s := &Store{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		s.pool = pool
	}
	return s
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// CreateFirstUser inserts the bootstrap admin unless any user already exists.
func (s *Store) CreateFirstUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (username, password_hash, pin, recovery_key_hash)
		SELECT $1::text, $2::text, $3::text, $4::text
		WHERE NOT EXISTS (SELECT 1 FROM users)
		RETURNING id, username, email, password_hash, COALESCE(pin, ''), recovery_key_hash, otp_hash, otp_expires_at, created_at;
	`
	row := s.exec.QueryRow(ctx, query, user.Username, user.PasswordHash, user.Pin, user.RecoveryKeyHash)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return models.User{}, storage.ErrAlreadyExists
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("insert first user: %w", err)
	}
	return created, nil
}

// FindByID fetches a user by primary key.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	return s.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByUsername fetches a user by exact, case-sensitive username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, squirrel.Eq{"username": username})
}

func (s *Store) findOne(ctx context.Context, where squirrel.Eq) (models.User, error) {
	query, args, err := s.builder.Select(userColumns...).From(usersTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("build select user sql: %w", err)
	}
	user, err := scanUser(s.exec.QueryRow(ctx, query, args...))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, err
}

// UpdatePasswordHash overwrites the login password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("password_hash", hash).
		Where(squirrel.Eq{"id": id}))
}

// UpdatePin stores a new PIN representation.
func (s *Store) UpdatePin(ctx context.Context, id int64, pin string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("pin", pin).
		Where(squirrel.Eq{"id": id}))
}

// UpgradeLegacyPin replaces a plaintext PIN with its hash only if the row still holds the plaintext.
func (s *Store) UpgradeLegacyPin(ctx context.Context, id int64, legacy, hashed string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("pin", hashed).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"pin": legacy}))
}

// UpdateRecoveryKeyHash stores a new recovery key hash.
func (s *Store) UpdateRecoveryKeyHash(ctx context.Context, id int64, hash string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("recovery_key_hash", hash).
		Where(squirrel.Eq{"id": id}))
}

// UpdateEmail links an address for OTP delivery.
func (s *Store) UpdateEmail(ctx context.Context, id int64, email string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("email", email).
		Where(squirrel.Eq{"id": id}))
}

// BackfillRecoveryKeys sets hash on rows that have no recovery key yet.
func (s *Store) BackfillRecoveryKeys(ctx context.Context, hash string) (int64, error) {
	query, args, err := s.builder.Update(usersTable).
		Set("recovery_key_hash", hash).
		Where(squirrel.Eq{"recovery_key_hash": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build backfill sql: %w", err)
	}
	tag, err := s.exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("backfill recovery keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetOTP replaces the in-flight OTP hash and expiry together.
func (s *Store) SetOTP(ctx context.Context, id int64, otpHash string, expiresAt time.Time) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("otp_hash", otpHash).
		Set("otp_expires_at", expiresAt.UTC()).
		Where(squirrel.Eq{"id": id}))
}

// ConsumeOTP writes the new password and clears the OTP pair in one statement.
func (s *Store) ConsumeOTP(ctx context.Context, id int64, otpHash, passwordHash string) error {
	return s.update(ctx, s.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("otp_hash", squirrel.Expr("NULL")).
		Set("otp_expires_at", squirrel.Expr("NULL")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"otp_hash": otpHash}))
}

func (s *Store) update(ctx context.Context, b squirrel.UpdateBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build update sql: %w", err)
	}
	tag, err := s.exec.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Pin,
		&user.RecoveryKeyHash,
		&user.OTPHash,
		&user.OTPExpiresAt,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
