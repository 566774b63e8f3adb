// Package postgres is the GORM-backed persistence adapter: the user provider
// and session repository the engine runs against in production, plus the
// embedded schema migrations (including the row-level-security policies the
// rls package drives).
package postgres
