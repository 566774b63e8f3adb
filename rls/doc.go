// Package rls binds the authenticated identity into the database session so
// Postgres row-level-security policies can read it via current_setting().
//
// Bindings are transaction-scoped by default (set_config with is_local=true):
// they vanish at COMMIT/ROLLBACK, which makes them safe under connection
// pooling where the next borrower of the connection must never inherit a
// previous request's identity.
//
// # What this package must NOT do
//
//   - Decide authorization itself (policies in the database do that).
//   - Leave connection-scoped settings behind on pooled connections.
//   - Trust a client-supplied organization ID over the persisted membership.
package rls
