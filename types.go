package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRecord is the account snapshot the engine reads and writes through
// [UserProvider]. PasswordHash is empty for SSO-provisioned accounts, which
// can never pass a password login.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	IsVerified   bool

	MFAEnabled        bool
	MFASecret         string
	BackupCodeHashes  [][32]byte
	MFALastVerifiedAt *time.Time

	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastFailedLoginAt   *time.Time
	PasswordChangedAt   *time.Time

	OrganizationID   string
	OrganizationRole string
	OrgRequiresMFA   bool
}

// UserProvider is the persistence boundary for accounts. Implementations
// must return [ErrUserNotFound] for unknown emails or IDs; every other error
// is treated as an infrastructure failure.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, id string) (UserRecord, error)

	// RecordLoginFailure persists the escalated counter state in one write:
	// the new attempt count, the (possibly nil) lockout deadline, and the
	// failure timestamp.
	RecordLoginFailure(ctx context.Context, userID string, attempts int, lockoutUntil *time.Time, failedAt time.Time) error
	// ClearLockout zeroes the failed-attempt counter and clears the lockout
	// deadline. Called on successful login and password reset.
	ClearLockout(ctx context.Context, userID string) error

	// UpdateMFAVerification stamps a successful second-factor check and
	// persists the (possibly reduced) backup-code list in the same write so
	// a consumed code can never be replayed.
	UpdateMFAVerification(ctx context.Context, userID string, verifiedAt time.Time, backupCodeHashes [][32]byte) error
	// EnrollMFA activates MFA with the verified secret and fresh backup
	// codes.
	EnrollMFA(ctx context.Context, userID, secretBase32 string, backupCodeHashes [][32]byte) error

	UpdatePasswordHash(ctx context.Context, userID, newHash string, changedAt time.Time) error
	MarkVerified(ctx context.Context, userID string) error
}

// Mailer delivers the engine's notification emails. Every call is made
// best-effort from a background goroutine: failures are logged, never
// propagated to the request that triggered them.
type Mailer interface {
	SendAccountLockout(ctx context.Context, email string, until time.Time) error
	SendAdminLockoutAlert(ctx context.Context, adminEmail, lockedEmail string, until time.Time) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendVerification(ctx context.Context, email, token string) error
}

// Outcome is the terminal state of a login attempt. Exactly one outcome is
// produced per request.
type Outcome uint8

const (
	// OutcomeSuccess means a session was issued.
	OutcomeSuccess Outcome = iota
	// OutcomeInvalidCredentials covers unknown account, inactive account,
	// SSO account, and wrong password, indistinguishably.
	OutcomeInvalidCredentials
	// OutcomeLocked means the account is inside a lockout window.
	OutcomeLocked
	// OutcomeRateLimited means the endpoint budget was exceeded.
	OutcomeRateLimited
	// OutcomeNeedsVerification means the password was correct but the email
	// address is unverified.
	OutcomeNeedsVerification
	// OutcomeMFASetupRequired means the organization mandates MFA and this
	// user has not enrolled. The result carries a short-lived setup token.
	OutcomeMFASetupRequired
	// OutcomeMFARequired means a second factor is due and no code was
	// supplied.
	OutcomeMFARequired
	// OutcomeInvalidMFAToken means the supplied code failed both TOTP and
	// backup-code verification.
	OutcomeInvalidMFAToken
)

// String returns the wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeLocked:
		return "locked"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNeedsVerification:
		return "needs_verification"
	case OutcomeMFASetupRequired:
		return "mfa_setup_required"
	case OutcomeMFARequired:
		return "mfa_required"
	case OutcomeInvalidMFAToken:
		return "invalid_mfa_token"
	default:
		return "unknown"
	}
}

// LoginRequest is the input to [Engine.Login]. MFACode is optional; it is
// consulted only when a second factor is due.
type LoginRequest struct {
	Email    string
	Password string
	MFACode  string
}

// LoginResult is the terminal state of one login attempt. Which fields are
// populated depends on Outcome: SessionToken/SessionID/ExpiresAt on success,
// RetryAfter on locked/rate_limited, Warning/RemainingAttempts on a
// near-lockout failure, SetupToken on mfa_setup_required.
type LoginResult struct {
	Outcome Outcome
	UserID  string

	SessionID    uuid.UUID
	SessionToken string
	ExpiresAt    time.Time

	RetryAfter        time.Duration
	Warning           string
	RemainingAttempts int

	SetupToken string
}

// MFASetup is returned by [Engine.BeginMFASetup]: the provisioning secret
// and URI for the authenticator app, plus the one-time backup codes shown to
// the user exactly once. Only hashes are retained server-side.
type MFASetup struct {
	SecretBase32 string
	ProvisionURI string
	BackupCodes  []string
}
