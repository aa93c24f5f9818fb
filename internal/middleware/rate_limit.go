package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/shopdesk-auth/internal/http/respond"
	"github.com/hongminglow/shopdesk-auth/internal/logger"
)

// RateLimitStore defines the persistence operations required by the limiter.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// IdentifierFunc extracts the identifier used to scope a limit.
type IdentifierFunc func(*http.Request) (string, bool)

// RateLimitRule configures a sliding-window limit.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Message    string
	Identifier IdentifierFunc
}

// RateLimiter evaluates rules against a RateLimitStore.
type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type ruleResult struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// NewRateLimiter builds a limiter. A nil store disables limiting.
func NewRateLimiter(store RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: log, now: time.Now}
}

// WithClock allows injection of a custom clock.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes limits by caller address.
func ClientIPIdentifier(trustProxy bool) IdentifierFunc {
	return func(r *http.Request) (string, bool) {
		ip := ClientIP(r, trustProxy)
		return ip, ip != ""
	}
}

// Limit returns a middleware enforcing rule. Store failures let the request
// through.
func (rl *RateLimiter) Limit(rule RateLimitRule) Middleware {
	if rl == nil || rl.store == nil || rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return Passthrough
	}
	if rule.Name == "" {
		rule.Name = "default"
	}
	if rule.Message == "" {
		rule.Message = "Too many requests, please try again later."
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, ok := rule.Identifier(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			res, err := rl.evaluate(r.Context(), rule, fmt.Sprintf("%s:%s", rule.Name, identifier), rl.now())
			if err != nil {
				logger.WithContext(r.Context(), rl.logger).Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("client_ip", logger.MaskIP(identifier)),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			applyHeaders(w, res)
			if !res.allowed {
				respond.Error(w, http.StatusTooManyRequests, rule.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) evaluate(ctx context.Context, rule RateLimitRule, key string, now time.Time) (ruleResult, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return ruleResult{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, err
	}
	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, err
	}

	res := ruleResult{allowed: true, limit: rule.Limit, reset: now.Add(rule.Window)}
	if hasAttempts {
		res.reset = oldest.Add(rule.Window)
	}
	res.retryAfter = max(res.reset.Sub(now), 0)

	if count >= rule.Limit {
		res.allowed = false
		return res, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return ruleResult{}, err
	}
	res.remaining = max(rule.Limit-count-1, 0)
	return res, nil
}

func applyHeaders(w http.ResponseWriter, res ruleResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.reset.Unix(), 10))
	if !res.allowed {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.retryAfter.Seconds()))))
	}
}
