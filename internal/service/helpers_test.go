package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/storage/memory"
)

type sentMail struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

func (m *fakeMailer) SendOTP(_ context.Context, to, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Code: code, ExpiresAt: expiresAt})
	return nil
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc    *AuthService
	store  *memory.Store
	mailer *fakeMailer
	clock  *clock
	tokens *auth.TokenManager
	hasher credential.Hasher
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	mailer := &fakeMailer{}
	hasher := credential.NewHasher(bcrypt.MinCost)
	tokens := auth.NewTokenManager("test-secret", "shopdesk-auth", 7*24*time.Hour).WithClock(clk.Now)
	core, logs := observer.New(zapcore.DebugLevel)

	svc := NewAuthService(store, tokens, hasher, mailer, zap.New(core), WithClock(clk.Now))
	return &fixture{svc: svc, store: store, mailer: mailer, clock: clk, tokens: tokens, hasher: hasher, logs: logs}
}

func (f *fixture) register(t *testing.T, username, password string) Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), username, password)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return sess
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
