// Package password provides Argon2id password hashing in PHC string format.
//
// Hashes embed their own parameters, so Verify works against records written
// under older tuning. Comparison is constant-time.
//
// # What this package must NOT do
//
//   - Enforce password composition policy (the engine's callers own that).
//   - Log or retain plaintext passwords.
package password
