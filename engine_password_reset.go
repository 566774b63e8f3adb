package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadforge/authcore/internal/rate"
)

// ResetOutcome is the terminal state of a password-reset confirmation.
type ResetOutcome uint8

const (
	// ResetApplied means the password was changed and all sessions killed.
	ResetApplied ResetOutcome = iota
	// ResetTokenInvalid covers malformed, expired, and wrong-purpose
	// tokens. The user should request a new link.
	ResetTokenInvalid
	// ResetTokenUsed means the token predates the most recent password
	// change: the link was already consumed.
	ResetTokenUsed
	// ResetWeakPassword means the new password fails the minimum-length
	// policy.
	ResetWeakPassword
)

// ResetResult is returned by [Engine.ConfirmPasswordReset].
type ResetResult struct {
	Outcome ResetOutcome
	UserID  string
}

// RequestPasswordReset issues a reset token and mails it, best-effort. The
// response is identical whether or not the email exists, so the endpoint
// cannot be used to enumerate accounts. Only [ErrRateLimited] and
// infrastructure failures are reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	now := time.Now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))
	ip := ClientIPFromContext(ctx)

	if check := e.limiter.Check(ctx, rate.EndpointPasswordReset, ip, email); !check.Allowed {
		return ErrRateLimited
	}

	e.metrics.Inc(MetricPasswordResetRequested)

	user, err := e.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		// Same outward behavior as the found case.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if user.PasswordHash == "" {
		// SSO accounts have no password to reset.
		return nil
	}

	token, err := e.issueToken(TokenPasswordReset, user.ID, e.config.Token.ResetTTL, now)
	if err != nil {
		return err
	}

	target := user.Email
	e.bestEffort("password_reset_mail", func(ctx context.Context) error {
		return e.mailer.SendPasswordReset(ctx, target, token)
	})
	e.emitAudit(ctx, AuditEvent{
		EventType: "password_reset_requested",
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// ConfirmPasswordReset applies a password reset. A token issued at or before
// the most recent password change is rejected as already used: the boundary
// is exclusive on purpose, so a tie goes to rejection. On success every
// session of the user is invalidated and any lockout cleared.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (ResetResult, error) {
	if e.closed.Load() {
		return ResetResult{}, ErrEngineClosed
	}

	now := time.Now().UTC()

	verified := e.verifyToken(token, TokenPasswordReset, now)
	if !verified.Valid {
		e.emitAudit(ctx, AuditEvent{
			EventType: "password_reset_rejected",
			Metadata:  map[string]string{"reason": "token_invalid"},
		})
		return ResetResult{Outcome: ResetTokenInvalid}, nil
	}

	user, err := e.users.FindByID(ctx, verified.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return ResetResult{Outcome: ResetTokenInvalid}, nil
	}
	if err != nil {
		return ResetResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if user.PasswordChangedAt != nil && !verified.IssuedAt.After(*user.PasswordChangedAt) {
		e.emitAudit(ctx, AuditEvent{
			EventType: "password_reset_rejected",
			UserID:    user.ID,
			Metadata:  map[string]string{"reason": "token_used"},
		})
		return ResetResult{Outcome: ResetTokenUsed, UserID: user.ID}, nil
	}

	if len(newPassword) < e.config.PasswordMinLength {
		return ResetResult{Outcome: ResetWeakPassword, UserID: user.ID}, nil
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ResetResult{}, err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash, now); err != nil {
		return ResetResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	// A reset proves account control: clear any lockout and kill every
	// session that might belong to whoever forced the reset.
	if err := e.users.ClearLockout(ctx, user.ID); err != nil {
		e.logger.Warn("lockout clear after reset failed", "user_id", user.ID, "error", err)
	}
	if err := e.sessions.InvalidateAllForUser(ctx, user.ID); err != nil {
		e.logger.Warn("session purge after reset failed", "user_id", user.ID, "error", err)
	}

	e.metrics.Inc(MetricPasswordResetCompleted)
	e.metrics.Inc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "password_reset_completed",
		UserID:    user.ID,
		Success:   true,
	})
	return ResetResult{Outcome: ResetApplied, UserID: user.ID}, nil
}
