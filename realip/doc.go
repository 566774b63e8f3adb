// Package realip extracts a trustworthy client IP address from proxy headers
// under an adversarial-input assumption.
//
// # Threat model
//
// X-Forwarded-For is client-controlled: a client can prepend arbitrary fake
// hops before the real chain appended by proxies it cannot control. The
// resolver therefore walks the chain from the proxy-nearest (rightmost) entry
// toward the client-claimed (leftmost) entry and trusts the first address that
// is not a known proxy.
//
// # What this package must NOT do
//
//   - Perform I/O or DNS lookups (pure function of header input).
//   - Trust any syntactically invalid candidate.
//   - Import any other authcore package.
package realip
