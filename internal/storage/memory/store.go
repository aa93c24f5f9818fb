// Package memory is an in-process storage.UserStore used by tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

// Store keeps users in a map guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	users  map[int64]models.User
	nextID int64
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{users: make(map[int64]models.User), now: time.Now}
}

// Put inserts or replaces a user as-is, assigning an id when zero.
func (s *Store) Put(user models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(user)
}

func (s *Store) put(user models.User) models.User {
	if user.ID == 0 {
		s.nextID++
		user.ID = s.nextID
	} else if user.ID > s.nextID {
		s.nextID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	return user
}

// Get returns the raw row for assertions.
func (s *Store) Get(id int64) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) CreateFirstUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 {
		return models.User{}, storage.ErrAlreadyExists
	}
	user.ID = 0
	user.CreatedAt = time.Time{}
	return s.put(user), nil
}

func (s *Store) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (s *Store) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	return s.mutate(id, func(u *models.User) bool { u.PasswordHash = hash; return true })
}

func (s *Store) UpdatePin(_ context.Context, id int64, pin string) error {
	return s.mutate(id, func(u *models.User) bool { u.Pin = pin; return true })
}

func (s *Store) UpgradeLegacyPin(_ context.Context, id int64, legacy, hashed string) error {
	return s.mutate(id, func(u *models.User) bool {
		if u.Pin != legacy {
			return false
		}
		u.Pin = hashed
		return true
	})
}

func (s *Store) UpdateRecoveryKeyHash(_ context.Context, id int64, hash string) error {
	return s.mutate(id, func(u *models.User) bool { u.RecoveryKeyHash = &hash; return true })
}

func (s *Store) UpdateEmail(_ context.Context, id int64, email string) error {
	return s.mutate(id, func(u *models.User) bool { u.Email = &email; return true })
}

func (s *Store) BackfillRecoveryKeys(_ context.Context, hash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, u := range s.users {
		if u.RecoveryKeyHash == nil {
			h := hash
			u.RecoveryKeyHash = &h
			s.users[id] = u
			n++
		}
	}
	return n, nil
}

func (s *Store) SetOTP(_ context.Context, id int64, otpHash string, expiresAt time.Time) error {
	return s.mutate(id, func(u *models.User) bool {
		exp := expiresAt
		u.OTPHash = &otpHash
		u.OTPExpiresAt = &exp
		return true
	})
}

func (s *Store) ConsumeOTP(_ context.Context, id int64, otpHash, passwordHash string) error {
	return s.mutate(id, func(u *models.User) bool {
		if u.OTPHash == nil || *u.OTPHash != otpHash {
			return false
		}
		u.PasswordHash = passwordHash
		u.OTPHash = nil
		u.OTPExpiresAt = nil
		return true
	})
}

func (s *Store) mutate(id int64, fn func(*models.User) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !fn(&u) {
		return storage.ErrNotFound
	}
	s.users[id] = u
	return nil
}
