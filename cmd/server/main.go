package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/config"
	"github.com/hongminglow/shopdesk-auth/internal/credential"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
	"github.com/hongminglow/shopdesk-auth/internal/middleware"
	"github.com/hongminglow/shopdesk-auth/internal/notify"
	"github.com/hongminglow/shopdesk-auth/internal/server"
	"github.com/hongminglow/shopdesk-auth/internal/service"
	postgres "github.com/hongminglow/shopdesk-auth/internal/storage/postgres"
	redisstore "github.com/hongminglow/shopdesk-auth/internal/storage/redis"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)
	if envErr != nil {
		zl.Debug("no .env file found; relying on existing environment")
	}

	ctx := context.Background()
	userStore, err := postgres.NewUserStore(ctx, cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("init database", zap.Error(err))
	}
	defer userStore.Close()

	var rateStore middleware.RateLimitStore
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, zl)
		if err != nil {
			zl.Fatal("init redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		ttl := max(cfg.LoginRate.Window, cfg.OTPRate.Window)
		rateStore = redisstore.NewRateLimitRepository(client, "shopdesk:ratelimit", ttl)
	} else {
		zl.Warn("REDIS_ADDR not set; rate limiting disabled")
	}

	var mailer notify.Mailer = notify.Disabled{}
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		zl.Warn("SMTP_HOST not set; OTP codes will only be logged")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := service.NewAuthService(userStore, tokens, credential.NewHasher(cfg.BcryptCost), mailer, zl,
		service.WithOTPTTL(cfg.OTPTTL), service.WithPasswordStrength(cfg.PasswordMinScore))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := server.New(cfg, server.Deps{
		Auth:      authService,
		DB:        userStore,
		RateStore: rateStore,
		Registry:  registry,
		Logger:    zl,
	})
	if err != nil {
		zl.Fatal("init server", zap.Error(err))
	}

	go func() {
		zl.Info("shopdesk auth listening", zap.String("addr", cfg.HTTPAddress()), zap.String("prefix", cfg.APIPrefix))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zl.Error("graceful shutdown error", zap.Error(err))
	}
}
