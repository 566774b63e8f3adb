package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leadforge/authcore/internal/rate"
	"github.com/leadforge/authcore/lockout"
	"github.com/leadforge/authcore/mfa"
	"github.com/leadforge/authcore/session"
)

// Login runs the login protocol: rate check, account lookup, lockout check,
// password check, verification check, organization MFA mandate, MFA
// challenge, session issuance. Every terminal is a [LoginResult]; an error
// return means an infrastructure failure, not a failed authentication.
//
// Attach the resolved client IP and user agent with [WithClientIP] and
// [WithUserAgent] before calling.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if e.closed.Load() {
		return LoginResult{}, ErrEngineClosed
	}

	now := time.Now().UTC()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ip := ClientIPFromContext(ctx)
	userAgent := UserAgentFromContext(ctx)

	// Two budgets: a wider per-IP one, and a tighter per-account one that
	// slows credential stuffing against a single email from many source
	// addresses sharing a NAT.
	ipCheck := e.limiter.Check(ctx, rate.EndpointLogin, ip, "")
	accountCheck := e.limiter.Check(ctx, rate.EndpointLogin, ip, email)
	if !ipCheck.Allowed || !accountCheck.Allowed {
		e.metrics.Inc(MetricLoginRateLimited)
		e.auditLogin(ctx, OutcomeRateLimited, "", nil)
		return LoginResult{
			Outcome:    OutcomeRateLimited,
			RetryAfter: max(ipCheck.RetryAfter, accountCheck.RetryAfter),
		}, nil
	}

	user, err := e.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return e.rejectCredentials(ctx, req.Password, "")
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	// Inactive accounts and SSO accounts (no password hash) fail exactly
	// like an unknown email.
	if !user.IsActive || user.PasswordHash == "" {
		return e.rejectCredentials(ctx, req.Password, user.ID)
	}

	if state := lockout.Status(user.LockoutUntil, now); state.IsLocked {
		e.metrics.Inc(MetricLoginLocked)
		e.auditLogin(ctx, OutcomeLocked, user.ID, nil)
		return LoginResult{
			Outcome:    OutcomeLocked,
			UserID:     user.ID,
			RetryAfter: time.Duration(state.RemainingSeconds) * time.Second,
		}, nil
	}

	ok, err := e.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		// A stored hash we cannot parse is an operator problem; the caller
		// still only learns "invalid credentials".
		e.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		ok = false
	}
	if !ok {
		return e.recordPasswordFailure(ctx, user, now)
	}

	if !user.IsVerified {
		e.auditLogin(ctx, OutcomeNeedsVerification, user.ID, nil)
		return LoginResult{Outcome: OutcomeNeedsVerification, UserID: user.ID}, nil
	}

	if mfa.RequiresOrganizationSetup(user.OrgRequiresMFA, user.MFAEnabled) {
		setupToken, err := e.issueToken(TokenMFASetup, user.ID, e.config.Token.MFASetupTTL, now)
		if err != nil {
			return LoginResult{}, err
		}
		e.auditLogin(ctx, OutcomeMFASetupRequired, user.ID, nil)
		return LoginResult{
			Outcome:    OutcomeMFASetupRequired,
			UserID:     user.ID,
			SetupToken: setupToken,
		}, nil
	}

	if user.MFAEnabled {
		result, done, err := e.checkSecondFactor(ctx, &user, req.MFACode, ip, userAgent, now)
		if err != nil {
			return LoginResult{}, err
		}
		if done {
			return result, nil
		}
	}

	return e.issueSession(ctx, user, email, ip, userAgent)
}

// rejectCredentials is the shared terminal for unknown, inactive, and SSO
// accounts. It burns a hash verification against a throwaway hash so the
// response time does not reveal whether the account exists.
func (e *Engine) rejectCredentials(ctx context.Context, attemptedPassword, userID string) (LoginResult, error) {
	_, _ = e.hasher.Verify(attemptedPassword, e.dummyHash)
	e.metrics.Inc(MetricLoginFailure)
	e.auditLogin(ctx, OutcomeInvalidCredentials, userID, nil)
	return LoginResult{Outcome: OutcomeInvalidCredentials}, nil
}

// recordPasswordFailure escalates the failed-attempt counter and, on
// crossing the threshold, arms the lockout, kills the user's sessions, and
// notifies the account owner plus every configured admin. Notifications are
// best-effort; the counter write is critical path.
func (e *Engine) recordPasswordFailure(ctx context.Context, user UserRecord, now time.Time) (LoginResult, error) {
	effective := user.FailedLoginAttempts
	if e.lockout.ShouldResetAttempts(user.LastFailedLoginAt, now) {
		effective = 0
	}
	outcome := e.lockout.RecordFailure(effective, now)

	if err := e.users.RecordLoginFailure(ctx, user.ID, outcome.NewFailedAttempts, outcome.LockoutUntil, now); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	e.metrics.Inc(MetricLoginFailure)

	if outcome.ShouldLockout {
		e.metrics.Inc(MetricLockoutTriggered)
		until := *outcome.LockoutUntil

		userID, email := user.ID, user.Email
		e.bestEffort("lockout_session_purge", func(ctx context.Context) error {
			return e.sessions.InvalidateAllForUser(ctx, userID)
		})
		e.bestEffort("lockout_notice", func(ctx context.Context) error {
			return e.mailer.SendAccountLockout(ctx, email, until)
		})
		for _, admin := range e.config.AdminEmails {
			admin := admin
			e.bestEffort("admin_lockout_alert", func(ctx context.Context) error {
				return e.mailer.SendAdminLockoutAlert(ctx, admin, email, until)
			})
		}

		e.emitAudit(ctx, AuditEvent{
			EventType: "lockout_triggered",
			UserID:    user.ID,
			Metadata:  map[string]string{"attempts": fmt.Sprint(outcome.NewFailedAttempts)},
		})
	}

	e.auditLogin(ctx, OutcomeInvalidCredentials, user.ID, nil)

	result := LoginResult{Outcome: OutcomeInvalidCredentials, UserID: user.ID}
	if outcome.IsWarning {
		result.Warning = outcome.WarningMessage
		result.RemainingAttempts = outcome.RemainingAttempts
	}
	return result, nil
}

// checkSecondFactor decides whether MFA is due and, when a code was
// supplied, verifies it as TOTP first and as a backup code second. done is
// true when the login terminates here.
func (e *Engine) checkSecondFactor(ctx context.Context, user *UserRecord, code, ip, userAgent string, now time.Time) (LoginResult, bool, error) {
	required := mfa.NeedsVerification(user.MFAEnabled, user.MFALastVerifiedAt, e.config.MFA.ReverifyInterval, now)

	if !required && e.config.MFA.StepUpOnDeviceChange {
		last, err := e.sessions.LatestActiveForUser(ctx, user.ID)
		switch {
		case err == nil:
			required = mfa.CompareDevice(last.IPAddress, last.UserAgent, ip, userAgent).RequiresMFA
		case errors.Is(err, session.ErrNotFound):
			// No prior session to compare against.
		default:
			e.logger.Warn("device comparison unavailable", "user_id", user.ID, "error", err)
		}
	}

	if code == "" {
		if !required {
			return LoginResult{}, false, nil
		}
		e.metrics.Inc(MetricMFARequired)
		e.auditLogin(ctx, OutcomeMFARequired, user.ID, nil)
		return LoginResult{Outcome: OutcomeMFARequired, UserID: user.ID}, true, nil
	}

	// A supplied code is always verified, even when re-verification is not
	// currently due: a consumed backup code must fail on replay no matter
	// when the retry lands.
	remainingHashes := user.BackupCodeHashes
	verified := false
	if user.MFASecret != "" {
		totpOK, err := e.totp.Verify(user.MFASecret, code, now)
		if err != nil {
			e.logger.Error("stored totp secret unreadable", "user_id", user.ID, "error", err)
		}
		verified = totpOK
	}
	if !verified {
		backup := mfa.VerifyBackupCode(code, user.BackupCodeHashes)
		if backup.IsValid {
			verified = true
			remainingHashes = backup.RemainingHashes
			e.metrics.Inc(MetricBackupCodeUsed)
		}
	}

	if !verified {
		e.metrics.Inc(MetricMFAFailure)
		e.auditLogin(ctx, OutcomeInvalidMFAToken, user.ID, nil)
		return LoginResult{Outcome: OutcomeInvalidMFAToken, UserID: user.ID}, true, nil
	}

	// Stamp the verification and persist any consumed backup code in the
	// same write; losing this write would allow a backup-code replay.
	if err := e.users.UpdateMFAVerification(ctx, user.ID, now, remainingHashes); err != nil {
		return LoginResult{}, false, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	user.BackupCodeHashes = remainingHashes
	e.metrics.Inc(MetricMFASuccess)
	return LoginResult{}, false, nil
}

// issueSession is the success terminal: the session write and the
// counter/lockout clear run concurrently; the success audit is emitted only
// once both commit, then the rate windows are reset so legitimate retries
// after a typo are not penalized.
func (e *Engine) issueSession(ctx context.Context, user UserRecord, email, ip, userAgent string) (LoginResult, error) {
	var (
		record session.Record
		token  string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, token, err = e.sessions.Issue(gctx, user.ID, ip, userAgent)
		return err
	})
	if user.FailedLoginAttempts > 0 || user.LockoutUntil != nil {
		g.Go(func() error {
			return e.users.ClearLockout(gctx, user.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return LoginResult{}, err
	}

	e.auditLogin(ctx, OutcomeSuccess, user.ID, nil)
	e.metrics.Inc(MetricSessionCreated)
	e.metrics.Inc(MetricLoginSuccess)

	e.limiter.Reset(ctx, rate.EndpointLogin, ip, "")
	e.limiter.Reset(ctx, rate.EndpointLogin, ip, email)

	return LoginResult{
		Outcome:      OutcomeSuccess,
		UserID:       user.ID,
		SessionID:    record.ID,
		SessionToken: token,
		ExpiresAt:    record.ExpiresAt(e.sessions.Lifetime()),
	}, nil
}
