package authcore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/leadforge/authcore/internal/rate"
	"github.com/leadforge/authcore/lockout"
	"github.com/leadforge/authcore/mfa"
	"github.com/leadforge/authcore/password"
	"github.com/leadforge/authcore/rls"
	"github.com/leadforge/authcore/session"
)

// Builder assembles an [Engine] from its dependencies. Redis client, user
// provider, and session repository are required; everything else has a
// default.
type Builder struct {
	cfg         Config
	cfgSet      bool
	redis       redis.UniversalClient
	users       UserProvider
	sessionRepo session.Repository
	mailer      Mailer
	sink        AuditSink
	logger      *slog.Logger
	metrics     *Metrics
}

// NewBuilder starts a builder with [DefaultConfig].
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithRedis sets the shared cache client used by the rate limiter, the
// invalidation cache, and pending MFA enrollments.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the account persistence.
func (b *Builder) WithUserProvider(users UserProvider) *Builder {
	b.users = users
	return b
}

// WithSessionRepository sets the session persistence.
func (b *Builder) WithSessionRepository(repo session.Repository) *Builder {
	b.sessionRepo = repo
	return b
}

// WithMailer sets the notification sender. Without one, notification side
// effects are logged and skipped.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the audit destination. Without one, events are
// discarded.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics sets the counter registry. Defaults to a fresh one.
func (b *Builder) WithMetrics(metrics *Metrics) *Builder {
	b.metrics = metrics
	return b
}

// Build validates the configuration, wires the components, and starts the
// engine's background workers (invalidation-cache sweep, audit dispatcher).
func (b *Builder) Build() (*Engine, error) {
	cfg := b.cfg
	if !b.cfgSet {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("builder: redis client required")
	}
	if b.users == nil {
		return nil, errors.New("builder: user provider required")
	}
	if b.sessionRepo == nil {
		return nil, errors.New("builder: session repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	cacheCfg := cfg.Session.Cache
	if cacheCfg.MarkerTTL <= 0 {
		cacheCfg = session.DefaultCacheConfig(cfg.Session.Lifetime)
	}
	cache, err := session.NewInvalidationCache(b.redis, cacheCfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(b.sessionRepo, cache, cfg.Session.Lifetime, logger)
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = noopMailer{logger: logger}
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	// Hash a throwaway password once so unknown-account logins can burn the
	// same argon2 work as real ones.
	var dummy [16]byte
	if _, err := rand.Read(dummy[:]); err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(hex.EncodeToString(dummy[:]))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:    cfg,
		users:     b.users,
		mailer:    mailer,
		sessions:  store,
		limiter:   rate.New(b.redis, cfg.RateLimit, logger),
		lockout:   lockout.New(cfg.Lockout),
		totp:      mfa.NewTOTP(cfg.MFA.TOTP),
		hasher:    hasher,
		pending:   newPendingMFAStore(b.redis, cfg.Token.PendingMFATTL),
		audit:     newAuditDispatcher(cfg.Audit, b.sink),
		metrics:   metrics,
		logger:    logger,
		tenants:   rls.NewBinder(rls.Config{AdminEmails: cfg.AdminEmails}),
		dummyHash: dummyHash,
	}
	cache.Start()
	return e, nil
}
