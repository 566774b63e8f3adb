package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadforge/authcore/session"
)

// ValidateSession authenticates an opaque session token and returns the
// caller's identity. All rejection causes (malformed, revoked, expired,
// unknown) collapse into [ErrUnauthorized]; infrastructure failures without
// a degraded fallback surface as wrapped store errors.
func (e *Engine) ValidateSession(ctx context.Context, token string) (session.Identity, error) {
	if e.closed.Load() {
		return session.Identity{}, ErrEngineClosed
	}

	identity, err := e.sessions.Authenticate(ctx, token, time.Now().UTC())
	switch {
	case err == nil:
		if identity.Degraded {
			e.metrics.Inc(MetricSessionDegraded)
		}
		return identity, nil
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrExpired):
		return session.Identity{}, ErrUnauthorized
	default:
		return session.Identity{}, err
	}
}

// Logout invalidates the session behind token in the persisted store and
// the invalidation cache. From the client's perspective it always succeeds:
// an already-dead or garbage token is not an error, and even a persistence
// failure still plants the invalidation marker.
func (e *Engine) Logout(ctx context.Context, token string) {
	if e.closed.Load() {
		return
	}

	identity, err := e.sessions.Authenticate(ctx, token, time.Now().UTC())
	if err != nil {
		// Nothing valid to kill; nothing to report.
		return
	}

	if err := e.sessions.Invalidate(ctx, identity.SessionID); err != nil {
		e.logger.Warn("logout row update failed, marker planted",
			"session_id", identity.SessionID.String(), "error", err)
	}
	e.metrics.Inc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "logout",
		UserID:    identity.UserID,
		SessionID: identity.SessionID.String(),
		Success:   true,
	})
}

// LogoutAll invalidates every active session for userID. Used by account
// management and by the password-reset flow.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := e.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	e.metrics.Inc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEvent{
		EventType: "logout_all",
		UserID:    userID,
		Success:   true,
	})
	return nil
}
