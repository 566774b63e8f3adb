package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	// MetricLoginSuccess counts issued sessions.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts invalid-credential terminals.
	MetricLoginFailure
	// MetricLoginRateLimited counts rate-limit terminals.
	MetricLoginRateLimited
	// MetricLoginLocked counts lockout-gate terminals.
	MetricLoginLocked
	// MetricLockoutTriggered counts failures that armed a new lockout.
	MetricLockoutTriggered
	// MetricMFARequired counts challenges issued without a code.
	MetricMFARequired
	// MetricMFASuccess counts verified second factors.
	MetricMFASuccess
	// MetricMFAFailure counts codes that failed TOTP and backup both.
	MetricMFAFailure
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricSessionCreated counts persisted session rows.
	MetricSessionCreated
	// MetricSessionInvalidated counts invalidations (logout, reset, bulk).
	MetricSessionInvalidated
	// MetricSessionDegraded counts identities served from the degraded
	// path during a datastore outage.
	MetricSessionDegraded
	// MetricPasswordResetRequested counts reset-mail requests (including
	// unknown emails, which are indistinguishable by design).
	MetricPasswordResetRequested
	// MetricPasswordResetCompleted counts applied resets.
	MetricPasswordResetCompleted
	// MetricVerificationCompleted counts confirmed email verifications.
	MetricVerificationCompleted

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:           "login_success",
	MetricLoginFailure:           "login_failure",
	MetricLoginRateLimited:       "login_rate_limited",
	MetricLoginLocked:            "login_locked",
	MetricLockoutTriggered:       "lockout_triggered",
	MetricMFARequired:            "mfa_required",
	MetricMFASuccess:             "mfa_success",
	MetricMFAFailure:             "mfa_failure",
	MetricBackupCodeUsed:         "backup_code_used",
	MetricSessionCreated:         "session_created",
	MetricSessionInvalidated:     "session_invalidated",
	MetricSessionDegraded:        "session_degraded",
	MetricPasswordResetRequested: "password_reset_requested",
	MetricPasswordResetCompleted: "password_reset_completed",
	MetricVerificationCompleted:  "verification_completed",
}

// String returns the metric's export name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics holds the engine's counters. All operations are lock-free and a
// nil *Metrics is a valid no-op receiver.
type Metrics struct {
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates an enabled Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get reads one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// MetricsSnapshot is a point-in-time copy of every counter, keyed by export
// name.
type MetricsSnapshot map[string]uint64

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := make(MetricsSnapshot, metricIDCount)
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap[id.String()] = m.counters[id].Load()
	}
	return snap
}
