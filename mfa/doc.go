// Package mfa implements second-factor verification: time-based one-time
// codes, single-use hashed backup codes, and the step-up policies that decide
// when a login must present a second factor.
//
// # Code handling
//
// TOTP comparison and backup-code matching are constant-time. Backup codes are
// stored as SHA-256 hashes only; the plaintext exists once, at generation
// time, and is handed to the caller for display.
//
// # What this package must NOT do
//
//   - Persist anything (callers own the user record).
//   - Rate-limit attempts (the engine layers that on).
package mfa
