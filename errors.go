package authcore

import "errors"

var (
	// ErrUserNotFound is returned by UserProvider lookups for unknown
	// emails or IDs. The engine never surfaces it to clients directly.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized covers every session-validation failure surfaced to
	// callers: malformed token, revoked, expired, unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProviderUnavailable wraps user-persistence failures on a critical
	// path.
	ErrProviderUnavailable = errors.New("user provider unavailable")
	// ErrRateLimited is returned by the non-login flows (password reset,
	// verification, MFA setup) when the caller exceeded the endpoint budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy rejects a new password that fails the configured
	// minimum length.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrMFANotPending is returned by ConfirmMFASetup when no enrollment was
	// started or the pending secret expired.
	ErrMFANotPending = errors.New("no pending mfa enrollment")
	// ErrMFACodeInvalid rejects an enrollment confirmation whose code does
	// not match the pending secret.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrEngineClosed is returned by operations after Close.
	ErrEngineClosed = errors.New("engine closed")
)
