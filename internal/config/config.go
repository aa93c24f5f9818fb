package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	Env         string
	APIPrefix   string
	DatabaseURL string
	JWTSecret   string
	JWTIssuer   string
	JWTTTL      time.Duration
	BcryptCost  int
	OTPTTL      time.Duration
	CORSOrigins []string
	TrustProxy  bool

	// PasswordMinScore is the zxcvbn score new passwords must reach; 0 disables it.
	PasswordMinScore int

	Redis     RedisConfig
	LoginRate RateConfig
	OTPRate   RateConfig
	SMTP      SMTPConfig
}

// RedisConfig locates the rate limiter backend. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateConfig is a per-IP sliding window.
type RateConfig struct {
	Limit  int
	Window time.Duration
}

// SMTPConfig configures OTP mail delivery. An empty Host disables it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := read()
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadStorage is Load for tools that only touch the database.
func LoadStorage() (Config, error) {
	cfg := read()
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

func read() Config {
	cfg := Config{
		Port:             fallback(os.Getenv("PORT"), "8080"),
		Env:              fallback(os.Getenv("APP_ENV"), "development"),
		APIPrefix:        normalizePrefix(fallback(os.Getenv("API_PREFIX"), "/api")),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:        fallback(os.Getenv("JWT_ISSUER"), "shopdesk-auth"),
		JWTTTL:           minutes("JWT_TTL_MINUTES", 7*24*60),
		BcryptCost:       intEnv("BCRYPT_COST", bcrypt.DefaultCost),
		OTPTTL:           minutes("OTP_TTL_MINUTES", 10),
		PasswordMinScore: min(intEnv("PASSWORD_MIN_SCORE", 0), 4),
		CORSOrigins:      parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		TrustProxy:       boolEnv("TRUST_PROXY"),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intEnv("REDIS_DB", 0),
		},
		LoginRate: RateConfig{
			Limit:  intEnv("LOGIN_RATE_LIMIT", 1000),
			Window: seconds("LOGIN_RATE_WINDOW_SECONDS", 60),
		},
		OTPRate: RateConfig{
			Limit:  intEnv("OTP_RATE_LIMIT", 100),
			Window: seconds("OTP_RATE_WINDOW_SECONDS", 3600),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     intEnv("SMTP_PORT", 587),
			Username: strings.TrimSpace(os.Getenv("EMAIL_USER")),
			Password: os.Getenv("EMAIL_PASS"),
		},
	}
	cfg.SMTP.From = fallback(os.Getenv("EMAIL_FROM"), cfg.SMTP.Username)

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return cfg
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func intEnv(key string, def int) int {
	n, err := strconv.Atoi(fallback(os.Getenv(key), strconv.Itoa(def)))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func minutes(key string, def int) time.Duration {
	n := intEnv(key, def)
	if n == 0 {
		n = def
	}
	return time.Duration(n) * time.Minute
}

func seconds(key string, def int) time.Duration {
	n := intEnv(key, def)
	if n == 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func boolEnv(key string) bool {
	ok, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return ok
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
