package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadforge/authcore/internal/rate"
)

// RequestVerification issues an email-verification token and mails it,
// best-effort. Like password reset, the response does not reveal whether the
// email exists; already-verified accounts are silently skipped.
func (e *Engine) RequestVerification(ctx context.Context, email string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	now := time.Now().UTC()
	email = strings.ToLower(strings.TrimSpace(email))
	ip := ClientIPFromContext(ctx)

	if check := e.limiter.Check(ctx, rate.EndpointSignup, ip, email); !check.Allowed {
		return ErrRateLimited
	}

	user, err := e.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if user.IsVerified {
		return nil
	}

	token, err := e.issueToken(TokenEmailVerification, user.ID, e.config.Token.VerificationTTL, now)
	if err != nil {
		return err
	}

	target := user.Email
	e.bestEffort("verification_mail", func(ctx context.Context) error {
		return e.mailer.SendVerification(ctx, target, token)
	})
	e.emitAudit(ctx, AuditEvent{
		EventType: "verification_requested",
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// ConfirmVerification marks the account behind a verification token as
// verified. The returned TokenResult carries the rejection classification
// when Valid is false; confirming an already-verified account is a no-op
// success.
func (e *Engine) ConfirmVerification(ctx context.Context, token string) (TokenResult, error) {
	if e.closed.Load() {
		return TokenResult{}, ErrEngineClosed
	}

	verified := e.verifyToken(token, TokenEmailVerification, time.Now().UTC())
	if !verified.Valid {
		return verified, nil
	}

	user, err := e.users.FindByID(ctx, verified.UserID)
	if errors.Is(err, ErrUserNotFound) {
		verified.Valid = false
		verified.ErrKind = TokenMalformed
		return verified, nil
	}
	if err != nil {
		return TokenResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if !user.IsVerified {
		if err := e.users.MarkVerified(ctx, user.ID); err != nil {
			return TokenResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}

	e.metrics.Inc(MetricVerificationCompleted)
	e.emitAudit(ctx, AuditEvent{
		EventType: "verification_completed",
		UserID:    user.ID,
		Success:   true,
	})
	return verified, nil
}
