package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/shopdesk-auth/internal/models"
)

// ErrNotFound indicates a record does not exist, or a conditional update matched nothing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict, including registration
// attempts once the single admin row exists.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures credential persistence needed by the auth service.
type UserStore interface {
	// CreateFirstUser inserts user only if the table is empty; otherwise ErrAlreadyExists.
	CreateFirstUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)

	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdatePin(ctx context.Context, id int64, pin string) error
	// UpgradeLegacyPin swaps legacy for hashed only while the row still holds legacy.
	UpgradeLegacyPin(ctx context.Context, id int64, legacy, hashed string) error
	UpdateRecoveryKeyHash(ctx context.Context, id int64, hash string) error
	UpdateEmail(ctx context.Context, id int64, email string) error
	// BackfillRecoveryKeys sets hash on every row without a recovery key and returns the count.
	BackfillRecoveryKeys(ctx context.Context, hash string) (int64, error)

	// SetOTP replaces any in-flight OTP for the user.
	SetOTP(ctx context.Context, id int64, otpHash string, expiresAt time.Time) error
	// ConsumeOTP writes passwordHash and clears the OTP pair in one statement,
	// provided the stored OTP hash still equals otpHash; otherwise ErrNotFound.
	ConsumeOTP(ctx context.Context, id int64, otpHash, passwordHash string) error
}
