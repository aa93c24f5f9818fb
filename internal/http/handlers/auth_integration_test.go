package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/models/dto"
	"github.com/hongminglow/shopdesk-auth/internal/service"
	"github.com/hongminglow/shopdesk-auth/internal/storage/postgres"
)

// TestAuthIntegration exercises login, session and PIN endpoints against a live database.
// On an empty database it registers the admin first; otherwise it needs
// AUTH_INTEGRATION_USERNAME and AUTH_INTEGRATION_PASSWORD for the existing account.
func TestAuthIntegration(t *testing.T) {
	if os.Getenv("RUN_AUTH_INTEGRATION") != "true" {
		t.Skip("set RUN_AUTH_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	store, err := postgres.NewUserStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close()

	secret := mustGetEnv(t, "JWT_SECRET")
	tokens := auth.NewTokenManager(secret, "shopdesk-auth", mustGetTTL(t))
	log := zaptest.NewLogger(t)
	svc := service.NewAuthService(store, tokens, credential.NewHasher(bcrypt.MinCost), nil, log)

	mux := http.NewServeMux()
	NewAuthHandler(svc, log, WithPrefix("/api")).Register(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	username := fmt.Sprintf("apitest_%d", time.Now().UnixNano())
	password := fmt.Sprintf("Pass!%d", time.Now().UnixNano())

	status, _ := postJSON(t, ts.URL+"/api/auth/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	switch status {
	case http.StatusCreated:
		t.Logf("registered admin %s on an empty database", username)
	case http.StatusForbidden:
		username = os.Getenv("AUTH_INTEGRATION_USERNAME")
		password = os.Getenv("AUTH_INTEGRATION_PASSWORD")
		if username == "" || password == "" {
			t.Skip("database already has an admin; set AUTH_INTEGRATION_USERNAME/PASSWORD to continue")
		}
	default:
		t.Fatalf("register status = %d", status)
	}

	status, body := postJSON(t, ts.URL+"/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	var login dto.LoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if strings.TrimSpace(login.Token) == "" || login.User.Username != username {
		t.Fatalf("unexpected login response: %+v", login)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/verify", nil)
	if err != nil {
		t.Fatalf("build verify request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}

	status, _ = postJSON(t, ts.URL+"/api/auth/pin/verify", login.Token, map[string]string{"pin": "not-a-pin"})
	if status != http.StatusOK {
		t.Fatalf("pin verify status = %d", status)
	}
}

func postJSON(t *testing.T, url, token string, payload any) (int, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func mustGetTTL(t *testing.T) time.Duration {
	t.Helper()
	minutesStr := strings.TrimSpace(os.Getenv("JWT_TTL_MINUTES"))
	if minutesStr == "" {
		return 7 * 24 * time.Hour
	}
	minutes, err := strconv.Atoi(minutesStr)
	if err != nil || minutes <= 0 {
		t.Fatalf("invalid JWT_TTL_MINUTES value: %q", minutesStr)
	}
	return time.Duration(minutes) * time.Minute
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
		"../../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
