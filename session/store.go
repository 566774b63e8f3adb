package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/leadforge/authcore/internal"
)

var (
	// ErrInvalidToken covers malformed tokens and secret mismatches; callers
	// surface it as a generic unauthorized.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrRevoked marks a session whose IsActive flag is false or which
	// carries an invalidation marker.
	ErrRevoked = errors.New("session revoked")
	// ErrExpired marks a session past its derived deadline.
	ErrExpired = errors.New("session expired")
	// ErrStoreUnavailable wraps persistence failures on the session path.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

const recentIdentitySize = 1024

type recentEntry struct {
	userID    string
	tokenHash [32]byte
	expiresAt time.Time
}

// Identity is the authenticated result of a token check.
type Identity struct {
	SessionID uuid.UUID
	UserID    string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	// Degraded is set when the persisted-row check was skipped because the
	// datastore was unreachable and the identity came from the recent-
	// validation cache. Callers may treat degraded identities with reduced
	// trust but should not log the user out over a transient outage.
	Degraded bool
}

// Store combines the persisted session repository with the invalidation
// cache and owns token issuance and verification.
type Store struct {
	repo     Repository
	cache    *InvalidationCache
	lifetime time.Duration
	logger   *slog.Logger

	// recent remembers recently verified sessions so the read path can
	// degrade to a claimed identity during a datastore outage instead of
	// logging everyone out. It is never consulted while the datastore is
	// healthy.
	recent *lru.Cache[string, recentEntry]
}

// NewStore builds a Store. lifetime is the fixed session duration from which
// expiry is derived on every read. logger may be nil.
func NewStore(repo Repository, cache *InvalidationCache, lifetime time.Duration, logger *slog.Logger) (*Store, error) {
	if repo == nil {
		return nil, errors.New("session repository required")
	}
	if cache == nil {
		return nil, errors.New("invalidation cache required")
	}
	if lifetime <= 0 {
		return nil, errors.New("session lifetime must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	recent, err := lru.New[string, recentEntry](recentIdentitySize)
	if err != nil {
		return nil, err
	}

	return &Store{repo: repo, cache: cache, lifetime: lifetime, logger: logger, recent: recent}, nil
}

// Lifetime returns the configured session duration.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

// Cache exposes the invalidation cache for lifecycle management.
func (s *Store) Cache() *InvalidationCache {
	return s.cache
}

// Issue creates a session row for userID and returns the record plus the
// opaque token handed to the client. Only the token hash is persisted.
func (s *Store) Issue(ctx context.Context, userID, ip, userAgent string) (Record, string, error) {
	secret, err := internal.NewSessionSecret()
	if err != nil {
		return Record{}, "", err
	}

	record := Record{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: internal.HashSecret(secret),
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return Record{}, "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return record, internal.EncodeSessionToken(record.ID, secret), nil
}

// Authenticate verifies an opaque token: invalidation-cache check, persisted
// row check, secret hash comparison, active flag, derived expiry. When the
// datastore is unreachable it degrades to the recent-validation cache rather
// than hard-failing (Identity.Degraded is set).
func (s *Store) Authenticate(ctx context.Context, token string, now time.Time) (Identity, error) {
	sessionID, secret, err := internal.DecodeSessionToken(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	if s.cache.IsInvalidated(ctx, sessionID) {
		return Identity{}, ErrRevoked
	}

	wantHash := internal.HashSecret(secret)

	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return s.degraded(sessionID, wantHash, now, err)
	}

	if subtle.ConstantTimeCompare(record.TokenHash[:], wantHash[:]) != 1 {
		return Identity{}, ErrInvalidToken
	}
	if !record.IsActive {
		return Identity{}, ErrRevoked
	}
	if record.Expired(s.lifetime, now) {
		return Identity{}, ErrExpired
	}

	expiresAt := record.ExpiresAt(s.lifetime)
	s.recent.Add(sessionID.String(), recentEntry{
		userID:    record.UserID,
		tokenHash: record.TokenHash,
		expiresAt: expiresAt,
	})

	return Identity{
		SessionID: sessionID,
		UserID:    record.UserID,
		IPAddress: record.IPAddress,
		UserAgent: record.UserAgent,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Store) degraded(sessionID uuid.UUID, wantHash [32]byte, now time.Time, cause error) (Identity, error) {
	entry, ok := s.recent.Get(sessionID.String())
	if !ok ||
		subtle.ConstantTimeCompare(entry.tokenHash[:], wantHash[:]) != 1 ||
		!now.Before(entry.expiresAt) {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
	}

	s.logger.Warn("session store unreachable, serving degraded identity",
		"session_id", sessionID.String(), "error", cause)

	return Identity{
		SessionID: sessionID,
		UserID:    entry.userID,
		ExpiresAt: entry.expiresAt,
		Degraded:  true,
	}, nil
}

// Invalidate soft-kills one session and mirrors the invalidation into the
// cache. The marker is written even when the row update fails, so the
// session dies everywhere the cache reaches.
func (s *Store) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	err := s.repo.Invalidate(ctx, sessionID)
	s.cache.Set(ctx, sessionID, false)
	s.recent.Remove(sessionID.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// InvalidateAllForUser bulk-invalidates every active session for userID
// (password reset, lockout) and mirrors each into the cache.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) error {
	ids, err := s.repo.InvalidateAllForUser(ctx, userID)
	for _, id := range ids {
		s.cache.Set(ctx, id, false)
		s.recent.Remove(id.String())
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LatestActiveForUser exposes the device-comparison lookup.
func (s *Store) LatestActiveForUser(ctx context.Context, userID string) (Record, error) {
	return s.repo.LatestActiveForUser(ctx, userID)
}
