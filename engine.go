package authcore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadforge/authcore/internal/rate"
	"github.com/leadforge/authcore/lockout"
	"github.com/leadforge/authcore/mfa"
	"github.com/leadforge/authcore/password"
	"github.com/leadforge/authcore/rls"
	"github.com/leadforge/authcore/session"
)

// Engine orchestrates the login protocol, session validation, password
// reset, email verification, and MFA enrollment. Construct it with
// [NewBuilder]; a zero Engine is not usable.
//
// All methods are safe for concurrent use.
type Engine struct {
	config Config

	users    UserProvider
	mailer   Mailer
	sessions *session.Store
	limiter  *rate.Limiter
	lockout  *lockout.Policy
	totp     *mfa.TOTP
	hasher   *password.Hasher
	pending  *pendingMFAStore

	audit   *auditDispatcher
	metrics *Metrics
	logger  *slog.Logger
	tenants *rls.Binder

	// dummyHash is verified against when the account does not exist, so an
	// unknown email costs the same as a wrong password.
	dummyHash string

	closed  atomic.Bool
	effects sync.WaitGroup
}

// Sessions exposes the session store, for middleware that validates tokens
// without going through the engine.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// Tenants returns the RLS binder carrying the admin allow-list, for data
// layers that bind tenant identity into database sessions.
func (e *Engine) Tenants() *rls.Binder {
	return e.tenants
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Snapshot returns every engine counter keyed by export name. It satisfies
// the metrics exporters' source interface.
func (e *Engine) Snapshot() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close shuts the engine down: it stops accepting new background side
// effects, waits for in-flight ones, stops the invalidation-cache sweep, and
// drains the audit dispatcher. Close is idempotent.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.effects.Wait()
	e.sessions.Cache().Stop()
	e.audit.Close()
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	event.Timestamp = time.Now().UTC()
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = UserAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// auditLogin records one login terminal. Success is derived from the
// outcome.
func (e *Engine) auditLogin(ctx context.Context, outcome Outcome, userID string, metadata map[string]string) {
	e.emitAudit(ctx, AuditEvent{
		EventType: "login",
		Outcome:   outcome.String(),
		UserID:    userID,
		Success:   outcome == OutcomeSuccess,
		Metadata:  metadata,
	})
}
