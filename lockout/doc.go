// Package lockout implements the failed-attempt escalation policy for login.
//
// All functions are pure: they compute over attempt counters and timestamps
// passed in by the caller and never touch storage. The engine owns persisting
// the resulting counter and lockout window on the user record.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Read the wall clock (callers pass now explicitly).
//   - Decide notification behavior — callers react to ShouldLockout.
package lockout
