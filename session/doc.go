// Package session manages persisted session records and the two-tier
// invalidation cache consulted on every authenticated request.
//
// # Invalidation model
//
// Only invalidations are cached ("cache the negative"): a valid session is
// never cached as valid, because a stale "still valid" is the dangerous
// direction of error after an admin-triggered revocation. The local tier
// bounds staleness per node (short TTL, bounded size, LRU eviction); the
// distributed tier carries a marker whose TTL equals the maximum session
// lifetime so it cannot expire before the session it kills.
//
// All distributed operations run under a short timeout and fail open:
// availability is prioritized because the persisted-row check still applies
// on the primary path.
//
// # What this package must NOT do
//
//   - Hard-delete session rows (soft-invalidate only).
//   - Cache positive validity in the invalidation tiers.
//   - Block a request longer than the configured cache timeout.
package session
