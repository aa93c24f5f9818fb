package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/config"
	"github.com/hongminglow/shopdesk-auth/internal/http/handlers"
	"github.com/hongminglow/shopdesk-auth/internal/middleware"
	"github.com/hongminglow/shopdesk-auth/internal/service"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth *service.AuthService
	// DB is pinged by the health endpoint; optional.
	DB handlers.Pinger
	// RateStore backs the per-IP limiters; nil disables them.
	RateStore middleware.RateLimitStore
	// Registry receives HTTP metrics; nil uses a fresh registry.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) (*Server, error) {
	handler, err := Handler(cfg, deps)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}, nil
}

// Handler builds the routed, instrumented handler tree.
func Handler(cfg config.Config, deps Deps) (http.Handler, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: reg})
	if err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(deps.RateStore, log)
	clientIP := middleware.ClientIPIdentifier(cfg.TrustProxy)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), cfg.APIPrefix, deps.DB).Register(mux)
	handlers.NewAuthHandler(deps.Auth, log,
		handlers.WithPrefix(cfg.APIPrefix),
		handlers.WithLoginLimiter(limiter.Limit(middleware.RateLimitRule{
			Name:       "login",
			Limit:      cfg.LoginRate.Limit,
			Window:     cfg.LoginRate.Window,
			Message:    "Too many login attempts, please try again later.",
			Identifier: clientIP,
		})),
		handlers.WithOTPLimiter(limiter.Limit(middleware.RateLimitRule{
			Name:       "otp",
			Limit:      cfg.OTPRate.Limit,
			Window:     cfg.OTPRate.Window,
			Message:    "Too many OTP requests, please try again later.",
			Identifier: clientIP,
		})),
	).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return middleware.Chain(mux,
		middleware.CORS(cfg.CORSOrigins),
		middleware.RequestID,
		middleware.Logging(log, cfg.TrustProxy),
		metrics.Handler,
	), nil
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
