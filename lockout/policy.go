package lockout

import (
	"fmt"
	"time"
)

// Config holds the lockout escalation thresholds.
type Config struct {
	// MaxAttempts is the failed-attempt count at which the account locks.
	MaxAttempts int
	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration time.Duration
	// ResetWindow is the rolling forgiveness window: once this much time has
	// passed since the last failure, the counter restarts at zero even though
	// it was never explicitly cleared.
	ResetWindow time.Duration
	// WarnWithin enables the remaining-attempts warning once the number of
	// attempts left before lockout drops to this value or below.
	WarnWithin int
}

// DefaultConfig returns the policy shipped with the engine: five attempts,
// twenty-minute lockout, fifteen-minute rolling reset, warnings on the last
// two attempts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		LockoutDuration: 20 * time.Minute,
		ResetWindow:     15 * time.Minute,
		WarnWithin:      2,
	}
}

// State is the derived lockout status of an account.
type State struct {
	IsLocked         bool
	RemainingSeconds int
}

// Result describes the consequence of one more failed attempt.
type Result struct {
	NewFailedAttempts int
	ShouldLockout     bool
	LockoutUntil      *time.Time
	IsWarning         bool
	WarningMessage    string
	RemainingAttempts int
}

// Policy evaluates attempt counters against a Config.
type Policy struct {
	config Config
}

// New returns a Policy for cfg. Zero-value fields fall back to DefaultConfig.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = def.ResetWindow
	}
	if cfg.WarnWithin < 0 {
		cfg.WarnWithin = 0
	}
	return &Policy{config: cfg}
}

// Status reports whether lockoutUntil is an active lock at now.
// RemainingSeconds rounds up so a client that waits the reported number of
// seconds is guaranteed to be past the window.
func Status(lockoutUntil *time.Time, now time.Time) State {
	if lockoutUntil == nil || !lockoutUntil.After(now) {
		return State{}
	}
	remaining := lockoutUntil.Sub(now)
	seconds := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		seconds++
	}
	return State{IsLocked: true, RemainingSeconds: seconds}
}

// ShouldResetAttempts reports whether the failure counter should restart at
// zero because the last failure is older than the reset window.
func (p *Policy) ShouldResetAttempts(lastFailedAt *time.Time, now time.Time) bool {
	if lastFailedAt == nil {
		return true
	}
	return now.Sub(*lastFailedAt) >= p.config.ResetWindow
}

// RecordFailure increments effectiveAttempts and decides the consequence.
// effectiveAttempts is the counter after any ShouldResetAttempts forgiveness
// has been applied by the caller.
func (p *Policy) RecordFailure(effectiveAttempts int, now time.Time) Result {
	if effectiveAttempts < 0 {
		effectiveAttempts = 0
	}

	attempts := effectiveAttempts + 1
	remaining := p.config.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		NewFailedAttempts: attempts,
		RemainingAttempts: remaining,
	}

	if attempts >= p.config.MaxAttempts {
		until := now.Add(p.config.LockoutDuration)
		result.ShouldLockout = true
		result.LockoutUntil = &until
		return result
	}

	if p.config.WarnWithin > 0 && remaining <= p.config.WarnWithin {
		result.IsWarning = true
		if remaining == 1 {
			result.WarningMessage = "1 attempt remaining before your account is temporarily locked"
		} else {
			result.WarningMessage = fmt.Sprintf("%d attempts remaining before your account is temporarily locked", remaining)
		}
	}

	return result
}
