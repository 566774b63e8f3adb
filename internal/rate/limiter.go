package rate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Endpoint names an independently limited auth surface.
type Endpoint string

const (
	EndpointLogin           Endpoint = "login"
	EndpointSignup          Endpoint = "signup"
	EndpointPasswordReset   Endpoint = "password_reset"
	EndpointMFASetup        Endpoint = "mfa_setup"
	EndpointMFACodeGenerate Endpoint = "mfa_code_generate"
)

// Limit is one endpoint's fixed-window budget.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Config carries the per-endpoint budgets and the Redis operation timeout.
type Config struct {
	Login           Limit
	Signup          Limit
	PasswordReset   Limit
	MFASetup        Limit
	MFACodeGenerate Limit

	// Timeout bounds every Redis round-trip so a degraded cache cannot
	// degrade request latency. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds each Redis call made by the limiter.
const DefaultTimeout = 200 * time.Millisecond

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		Login:           Limit{MaxAttempts: 10, Window: 15 * time.Minute},
		Signup:          Limit{MaxAttempts: 5, Window: time.Hour},
		PasswordReset:   Limit{MaxAttempts: 5, Window: time.Hour},
		MFASetup:        Limit{MaxAttempts: 10, Window: 15 * time.Minute},
		MFACodeGenerate: Limit{MaxAttempts: 6, Window: 5 * time.Minute},
		Timeout:         DefaultTimeout,
	}
}

func (c Config) limitFor(endpoint Endpoint) Limit {
	switch endpoint {
	case EndpointLogin:
		return c.Login
	case EndpointSignup:
		return c.Signup
	case EndpointPasswordReset:
		return c.PasswordReset
	case EndpointMFASetup:
		return c.MFASetup
	case EndpointMFACodeGenerate:
		return c.MFACodeGenerate
	default:
		return Limit{}
	}
}

// Result is the outcome of one window check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	// FailedOpen marks results produced while Redis was unreachable; the
	// request was allowed without counting.
	FailedOpen bool
}

// Limiter enforces fixed-window budgets in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	logger *slog.Logger
}

// New creates a Limiter. logger may be nil.
func New(redisClient redis.UniversalClient, cfg Config, logger *slog.Logger) *Limiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{redis: redisClient, config: cfg, logger: logger}
}

func key(endpoint Endpoint, ip, identifier string) string {
	k := "rw:" + string(endpoint) + ":" + ip
	if identifier != "" {
		k += ":" + strings.ToLower(identifier)
	}
	return k
}

// Check counts this request against the endpoint's window and reports whether
// it is allowed. The first request in a window starts it; a request beyond
// MaxAttempts is denied with RetryAfter set to the window remainder.
func (l *Limiter) Check(ctx context.Context, endpoint Endpoint, ip, identifier string) Result {
	limit := l.config.limitFor(endpoint)
	if limit.MaxAttempts <= 0 || limit.Window <= 0 {
		return Result{Allowed: true, Limit: limit.MaxAttempts}
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	k := key(endpoint, ip, identifier)
	now := time.Now()

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.failOpen(endpoint, limit, err)
	}

	count := incr.Val()
	window := ttl.Val()
	if count == 1 || window < 0 {
		// First hit in the window, or a counter left without expiry by an
		// interrupted earlier call: (re)arm the window.
		if err := l.redis.Expire(ctx, k, limit.Window).Err(); err != nil {
			return l.failOpen(endpoint, limit, err)
		}
		window = limit.Window
	}
	resetAt := now.Add(window)

	remaining := limit.MaxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   count <= int64(limit.MaxAttempts),
		Limit:     limit.MaxAttempts,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = window
	}
	return result
}

// Reset clears the window after a verified success so a typo-then-correct
// sequence is not penalized on the next attempt.
func (l *Limiter) Reset(ctx context.Context, endpoint Endpoint, ip, identifier string) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	if err := l.redis.Del(ctx, key(endpoint, ip, identifier)).Err(); err != nil {
		l.logger.Warn("rate window reset failed", "endpoint", string(endpoint), "error", err)
	}
}

func (l *Limiter) failOpen(endpoint Endpoint, limit Limit, err error) Result {
	l.logger.Warn("rate limiter backend unreachable, failing open",
		"endpoint", string(endpoint), "error", err)
	return Result{
		Allowed:    true,
		Limit:      limit.MaxAttempts,
		Remaining:  limit.MaxAttempts,
		FailedOpen: true,
	}
}
