package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Repository lookups for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Record is a persisted session row. ExpiresAt is deliberately not stored:
// it is recomputed from CreatedAt and the configured lifetime on every read
// so a lifetime change applies uniformly to existing sessions.
type Record struct {
	ID         uuid.UUID
	UserID     string
	TokenHash  [32]byte
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	IsActive   bool
}

// ExpiresAt derives the session deadline for the given lifetime.
func (r Record) ExpiresAt(lifetime time.Duration) time.Time {
	return r.CreatedAt.Add(lifetime)
}

// Expired reports whether the session is past its derived deadline.
func (r Record) Expired(lifetime time.Duration, now time.Time) bool {
	return !now.Before(r.ExpiresAt(lifetime))
}

// Repository is the persistence boundary for session rows. Implementations
// live outside the core (see the postgres package for the production one).
type Repository interface {
	Create(ctx context.Context, record Record) error
	FindByID(ctx context.Context, id uuid.UUID) (Record, error)
	// Invalidate flips IsActive to false. Invalidating an already-inactive
	// or missing session is not an error.
	Invalidate(ctx context.Context, id uuid.UUID) error
	// InvalidateAllForUser bulk-invalidates and returns the affected IDs so
	// the caller can mirror markers into the invalidation cache.
	InvalidateAllForUser(ctx context.Context, userID string) ([]uuid.UUID, error)
	// LatestActiveForUser returns the most recent active session, used for
	// device/IP-change step-up comparison. ErrNotFound when none exists.
	LatestActiveForUser(ctx context.Context, userID string) (Record, error)
}
