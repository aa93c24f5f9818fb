package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/models"
	"github.com/hongminglow/shopdesk-auth/internal/service"
	"github.com/hongminglow/shopdesk-auth/internal/storage/memory"
)

type captureMailer struct {
	mu    sync.Mutex
	codes []string
}

func (m *captureMailer) SendOTP(_ context.Context, _ string, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	store  *memory.Store
	mailer *captureMailer
	tokens *auth.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	mailer := &captureMailer{}
	tokens := auth.NewTokenManager("test-secret", "shopdesk-auth", time.Hour)
	log := zaptest.NewLogger(t)
	svc := service.NewAuthService(store, tokens, credential.NewHasher(bcrypt.MinCost), mailer, log)

	mux := http.NewServeMux()
	NewAuthHandler(svc, log, WithPrefix("/api")).Register(mux)
	NewHealthHandler(time.Now(), "/api", nil).Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &testAPI{t: t, server: ts, store: store, mailer: mailer, tokens: tokens}
}

func (a *testAPI) do(method, path, token string, payload any) (int, map[string]any) {
	a.t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(a.t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &body)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (a *testAPI) register(username, password string) string {
	a.t.Helper()
	status, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": username, "password": password})
	require.Equal(a.t, http.StatusCreated, status, body)
	return body["token"].(string)
}

func TestRegisterLoginVerifyFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register("admin", "pw123456")

	status, body := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "pw123456"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"id": 1.0, "username": "admin"}, body["user"])
	token := body["token"].(string)

	status, body = api.do(http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"id": 1.0, "username": "admin"}, body["user"])

	status, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, map[string]any{"success": false, "error": "Invalid credentials"}, body)
}

func TestRegisterSecondTimeForbidden(t *testing.T) {
	api := newTestAPI(t)
	api.register("admin", "pw123456")

	status, body := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "other", "password": "pw123456"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Registration disabled. Users already exist.", body["error"])
}

func TestValidationAndMethodErrors(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username and password required", body["error"])

	status, body = api.do(http.MethodGet, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, false, body["success"])

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/auth/login", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)
	api.register("admin", "pw123456")

	for _, path := range []string{"/api/auth/verify", "/api/auth/pin"} {
		status, body := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "No token provided", body["error"])
	}

	expired, err := auth.NewTokenManager("test-secret", "shopdesk-auth", time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).
		Generate(models.User{ID: 1, Username: "admin"})
	require.NoError(t, err)

	_, expiredBody := api.do(http.MethodGet, "/api/auth/verify", expired, nil)
	forged, err := auth.NewTokenManager("other-secret", "shopdesk-auth", time.Hour).Generate(models.User{ID: 1, Username: "admin"})
	require.NoError(t, err)

	_, tamperedBody := api.do(http.MethodGet, "/api/auth/verify", forged, nil)
	assert.Equal(t, "Invalid or expired token", expiredBody["error"])
	assert.Equal(t, expiredBody, tamperedBody)
}

func TestPinResetThenVerifyDefault(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("admin", "pw123456")

	status, body := api.do(http.MethodPost, "/api/auth/pin/change", token, map[string]string{"oldPin": "1234", "newPin": "9876"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "PIN changed successfully", body["message"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/change", token, map[string]string{"oldPin": "1234", "newPin": "5555"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid old PIN", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/change", token, map[string]string{"oldPin": "9876", "newPin": "12"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "PIN must be 4-10 chars", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/reset", token, map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid password", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/reset", token, map[string]string{"password": "pw123456"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1234", body["pin"])
	assert.Equal(t, "PIN reset to default (1234)", body["message"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/verify", token, map[string]string{"pin": "1234"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"success": true, "valid": true}, body)

	status, body = api.do(http.MethodPost, "/api/auth/pin/verify", token, map[string]string{"pin": "9876"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["valid"])
}

func TestCurrentPinAndLegacyMigration(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("admin", "pw123456")

	row, _ := api.store.Get(1)
	row.Pin = "4321"
	api.store.Put(row)

	status, body := api.do(http.MethodGet, "/api/auth/pin", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4321", body["pin"])

	status, body = api.do(http.MethodPost, "/api/auth/pin/verify", token, map[string]string{"pin": "4321"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])

	row, _ = api.store.Get(1)
	assert.True(t, credential.IsHash(row.Pin))
}

func TestPinRoutesForDeletedUser(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.tokens.Generate(models.User{ID: 42, Username: "ghost"})
	require.NoError(t, err)

	status, body := api.do(http.MethodPost, "/api/auth/pin/verify", token, map[string]string{"pin": "1234"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", body["error"])
}

func TestRecoveryKeyReset(t *testing.T) {
	api := newTestAPI(t)
	api.register("admin", "pw123456")

	status, body := api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"username": "admin", "recoveryKey": "guess", "newPassword": "fresh-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid recovery key", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"username": "ghost", "recoveryKey": "secret", "newPassword": "fresh-password",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"username": "admin", "recoveryKey": "secret", "newPassword": "fresh-password",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Password reset successfully", body["message"])

	status, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "fresh-password"})
	assert.Equal(t, http.StatusOK, status)
}

func TestOTPResetFlow(t *testing.T) {
	api := newTestAPI(t)
	api.register("admin", "pw123456")

	status, body := api.do(http.MethodPost, "/api/auth/request-otp", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No email linked to this account", body["error"])

	email := "owner@example.com"
	row, _ := api.store.Get(1)
	row.Email = &email
	api.store.Put(row)

	status, unknown := api.do(http.MethodPost, "/api/auth/request-otp", "", map[string]string{"username": "ghost"})
	require.Equal(t, http.StatusOK, status)
	status, known := api.do(http.MethodPost, "/api/auth/request-otp", "", map[string]string{"username": "admin"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, unknown, known)
	require.Len(t, api.mailer.codes, 1)
	code := api.mailer.codes[0]

	status, body = api.do(http.MethodPost, "/api/auth/verify-otp-reset", "", map[string]string{
		"username": "admin", "otp": "not-it", "newPassword": "fresh-password",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid OTP", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/verify-otp-reset", "", map[string]string{
		"username": "admin", "otp": code, "newPassword": "fresh-password",
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(http.MethodPost, "/api/auth/verify-otp-reset", "", map[string]string{
		"username": "admin", "otp": code, "newPassword": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No OTP request pending", body["error"])
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	status, body := api.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthDegraded(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(time.Now(), "", downDB{}).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	he := mapError(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, he.status)
	assert.Equal(t, "internal server error", he.message)

	he = mapError(service.ErrOTPExpired)
	assert.Equal(t, httpError{http.StatusBadRequest, "OTP has expired"}, he)
}

func TestLongPasswordsNeverFailServerSide(t *testing.T) {
	api := newTestAPI(t)
	long := strings.Repeat("a", 80)
	api.register("admin", long)

	status, body := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": long})
	require.Equal(t, http.StatusOK, status, body)

	reset := strings.Repeat("b", 80)
	status, body = api.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{
		"username": "admin", "recoveryKey": "secret", "newPassword": reset,
	})
	require.Equal(t, http.StatusOK, status, body)

	email := "owner@example.com"
	row, _ := api.store.Get(1)
	row.Email = &email
	api.store.Put(row)
	status, _ = api.do(http.MethodPost, "/api/auth/request-otp", "", map[string]string{"username": "admin"})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, api.mailer.codes, 1)

	otpReset := strings.Repeat("c", 80)
	status, body = api.do(http.MethodPost, "/api/auth/verify-otp-reset", "", map[string]string{
		"username": "admin", "otp": api.mailer.codes[0], "newPassword": otpReset,
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": otpReset})
	assert.Equal(t, http.StatusOK, status, body)
}

func TestEmptyBodyReachesValidation(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username and password required", body["error"])

	status, body = api.do(http.MethodPost, "/api/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username and password required", body["error"])

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/auth/login", strings.NewReader("{bad"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON payload", out["error"])
}
