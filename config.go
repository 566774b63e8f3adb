package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/leadforge/authcore/internal/rate"
	"github.com/leadforge/authcore/lockout"
	"github.com/leadforge/authcore/mfa"
	"github.com/leadforge/authcore/password"
	"github.com/leadforge/authcore/session"
)

// SessionConfig controls issued sessions and the invalidation cache.
type SessionConfig struct {
	// Lifetime is the fixed session duration; expiry is derived from
	// CreatedAt on every read.
	Lifetime time.Duration
	// Cache tunes the two-tier invalidation cache. Zero values are filled
	// from session.DefaultCacheConfig(Lifetime).
	Cache session.CacheConfig
}

// TokenConfig controls the signed single-purpose tokens (password reset,
// email verification, MFA setup).
type TokenConfig struct {
	// Secret signs the tokens. Minimum 32 bytes.
	Secret []byte

	ResetTTL        time.Duration
	VerificationTTL time.Duration
	MFASetupTTL     time.Duration

	// PendingMFATTL bounds how long a started-but-unconfirmed MFA
	// enrollment is held.
	PendingMFATTL time.Duration
}

// MFAConfig controls second-factor policy.
type MFAConfig struct {
	TOTP mfa.TOTPConfig
	// ReverifyInterval is the "remember this verification" window.
	ReverifyInterval time.Duration
	// StepUpOnDeviceChange triggers MFA when the IP or user agent differs
	// from the most recent active session.
	StepUpOnDeviceChange bool
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	// The drop count is observable via Engine.AuditDropped.
	DropIfFull bool
}

// Config is the full engine configuration.
type Config struct {
	Session   SessionConfig
	RateLimit rate.Config
	Lockout   lockout.Config
	MFA       MFAConfig
	Password  password.Config
	Token     TokenConfig
	Audit     AuditConfig

	// PasswordMinLength applies to new passwords (reset, signup), not to
	// login attempts.
	PasswordMinLength int

	// TrustedProxies is the CIDR allow-list for client-IP resolution.
	TrustedProxies []string
	// AdminEmails receives lockout alerts and grants the global-admin RLS
	// bypass. Matching is case-insensitive.
	AdminEmails []string
}

// DefaultConfig returns production defaults. The token secret must still be
// supplied by the caller.
func DefaultConfig() Config {
	lifetime := 24 * time.Hour
	return Config{
		Session: SessionConfig{
			Lifetime: lifetime,
			Cache:    session.DefaultCacheConfig(lifetime),
		},
		RateLimit: rate.DefaultConfig(),
		Lockout:   lockout.DefaultConfig(),
		MFA: MFAConfig{
			TOTP:                 mfa.TOTPConfig{Issuer: "LeadForge"},
			ReverifyInterval:     mfa.DefaultReverifyInterval,
			StepUpOnDeviceChange: true,
		},
		Password: password.DefaultConfig(),
		Token: TokenConfig{
			ResetTTL:        time.Hour,
			VerificationTTL: 24 * time.Hour,
			MFASetupTTL:     15 * time.Minute,
			PendingMFATTL:   10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		PasswordMinLength: 10,
	}
}

// Validate rejects configurations the engine cannot run with. It normalizes
// nothing: zero-value tuning fields are filled by the components themselves.
func (c Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return errors.New("config: session lifetime must be positive")
	}
	if len(c.Token.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}
	if c.Token.ResetTTL <= 0 || c.Token.VerificationTTL <= 0 || c.Token.MFASetupTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("config: lockout max attempts must be at least 1")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("config: lockout duration must be positive")
	}
	if c.PasswordMinLength < 8 {
		return fmt.Errorf("config: password min length %d below floor 8", c.PasswordMinLength)
	}
	if c.Session.Cache.MarkerTTL > 0 && c.Session.Cache.MarkerTTL < c.Session.Lifetime {
		return errors.New("config: invalidation marker TTL below session lifetime")
	}
	return nil
}
