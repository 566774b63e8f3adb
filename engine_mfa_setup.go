package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadforge/authcore/internal/rate"
	"github.com/leadforge/authcore/mfa"
)

// BeginMFASetup starts MFA enrollment for the user behind a setup token
// (issued by Login when an organization mandates MFA). It generates a fresh
// TOTP secret and backup codes, parks them in the pending store, and returns
// the provisioning material. Nothing touches the user record until
// [Engine.ConfirmMFASetup] proves possession of the secret.
func (e *Engine) BeginMFASetup(ctx context.Context, setupToken string) (MFASetup, error) {
	if e.closed.Load() {
		return MFASetup{}, ErrEngineClosed
	}

	now := time.Now().UTC()
	ip := ClientIPFromContext(ctx)

	verified := e.verifyToken(setupToken, TokenMFASetup, now)
	if !verified.Valid {
		return MFASetup{}, ErrUnauthorized
	}

	if check := e.limiter.Check(ctx, rate.EndpointMFASetup, ip, verified.UserID); !check.Allowed {
		return MFASetup{}, ErrRateLimited
	}

	user, err := e.users.FindByID(ctx, verified.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return MFASetup{}, ErrUnauthorized
	}
	if err != nil {
		return MFASetup{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return MFASetup{}, err
	}
	codes, hashes, err := mfa.GenerateBackupCodes(mfa.DefaultBackupCodeCount, mfa.DefaultBackupCodeLength)
	if err != nil {
		return MFASetup{}, err
	}

	if err := e.pending.put(ctx, user.ID, secretBase32, hashes); err != nil {
		return MFASetup{}, fmt.Errorf("stage mfa enrollment: %w", err)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "mfa_setup_started",
		UserID:    user.ID,
		Success:   true,
	})
	return MFASetup{
		SecretBase32: secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, user.Email),
		BackupCodes:  codes,
	}, nil
}

// ConfirmMFASetup completes enrollment: the code must verify against the
// pending secret, which is then activated on the user record together with
// the backup-code hashes. Returns [ErrMFANotPending] when no enrollment is
// staged and [ErrMFACodeInvalid] when the code does not match.
func (e *Engine) ConfirmMFASetup(ctx context.Context, setupToken, code string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	now := time.Now().UTC()

	verified := e.verifyToken(setupToken, TokenMFASetup, now)
	if !verified.Valid {
		return ErrUnauthorized
	}

	secretBase32, hashes, err := e.pending.get(ctx, verified.UserID)
	if err != nil {
		return err
	}

	ok, err := e.totp.Verify(secretBase32, code, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMFACodeInvalid
	}

	if err := e.users.EnrollMFA(ctx, verified.UserID, secretBase32, hashes); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	e.pending.delete(ctx, verified.UserID)

	e.emitAudit(ctx, AuditEvent{
		EventType: "mfa_setup_completed",
		UserID:    verified.UserID,
		Success:   true,
	})
	return nil
}
