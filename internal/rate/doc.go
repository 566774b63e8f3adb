// Package rate provides the fixed-window counters backing auth-endpoint rate
// limiting, keyed by endpoint + client IP and optionally a lower-cased
// identifier (an email, to slow credential stuffing against one account).
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit; the key TTL is the window. A key
// whose TTL has lapsed is simply absent, so the next request restarts the
// window at count=1. Key prefix: rw:{endpoint}:{ip}[:{identifier}].
//
// # Failure policy
//
// The limiter fails open: when Redis is unreachable or slow past the
// configured timeout, Check allows the request and logs the condition. This
// matches the invalidation cache's availability-over-consistency stance.
//
// # What this package must NOT do
//
//   - Decide which endpoints get limited (the engine owns policy).
//   - Be imported outside the authcore module.
package rate
