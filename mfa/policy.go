package mfa

import "time"

// DefaultReverifyInterval is the "remember this verification" window: a user
// who completed MFA within it is not challenged again on login.
const DefaultReverifyInterval = 30 * 24 * time.Hour

// NeedsVerification reports whether an MFA-enabled user must present a second
// factor now. A user who has never completed verification always must.
func NeedsVerification(enabled bool, lastVerifiedAt *time.Time, interval time.Duration, now time.Time) bool {
	if !enabled {
		return false
	}
	if lastVerifiedAt == nil {
		return true
	}
	if interval <= 0 {
		interval = DefaultReverifyInterval
	}
	return now.Sub(*lastVerifiedAt) >= interval
}

// DeviceChange is the step-up trigger comparison against the most recent
// active session. Either a new IP or a new user agent requires MFA,
// independent of the time-based re-verification policy.
type DeviceChange struct {
	IPChanged     bool
	DeviceChanged bool
	RequiresMFA   bool
}

// CompareDevice reports what changed between the last seen session and the
// current request. Empty "last" values mean there is no prior session to
// compare against, which is not treated as a change.
func CompareDevice(lastIP, lastUserAgent, currentIP, currentUserAgent string) DeviceChange {
	change := DeviceChange{}
	if lastIP != "" && currentIP != "" && lastIP != currentIP {
		change.IPChanged = true
	}
	if lastUserAgent != "" && currentUserAgent != "" && lastUserAgent != currentUserAgent {
		change.DeviceChanged = true
	}
	change.RequiresMFA = change.IPChanged || change.DeviceChanged
	return change
}

// RequiresOrganizationSetup reports whether the tenant mandates MFA for a
// user who has not yet enrolled. This blocks login with a distinct
// setup-required outcome rather than a normal challenge.
func RequiresOrganizationSetup(orgRequiresMFA, userMFAEnabled bool) bool {
	return orgRequiresMFA && !userMFAEnabled
}
