// Package authcore is the authentication and session-security core of the
// LeadForge platform. It owns the login protocol (rate limiting, lockout
// escalation, MFA, session issuance), session validation with a two-tier
// invalidation cache, password reset and email verification, and the
// row-level-security identity binding used by every tenant-scoped query.
//
// The package is a library, not a service: callers supply the user
// persistence ([UserProvider]), the session persistence
// ([session.Repository]), mail delivery ([Mailer]) and a Redis client, and
// the [Engine] orchestrates them. The cmd/authd binary wires the production
// implementations together.
//
// Expected authentication outcomes (wrong password, locked account, MFA
// challenge) are values, not errors: [Engine.Login] returns a [LoginResult]
// whose [Outcome] callers switch on. Errors are reserved for infrastructure
// failures the caller cannot act on beyond retrying or returning a 500.
package authcore
