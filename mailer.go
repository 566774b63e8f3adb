package authcore

import (
	"context"
	"log/slog"
	"time"
)

// noopMailer stands in when no Mailer is configured: every send is logged
// at warn level so a misconfigured deployment is visible.
type noopMailer struct {
	logger *slog.Logger
}

func (m noopMailer) SendAccountLockout(_ context.Context, email string, _ time.Time) error {
	m.logger.Warn("no mailer configured, dropping lockout notice", "email", email)
	return nil
}

func (m noopMailer) SendAdminLockoutAlert(_ context.Context, adminEmail, lockedEmail string, _ time.Time) error {
	m.logger.Warn("no mailer configured, dropping admin lockout alert",
		"admin", adminEmail, "locked", lockedEmail)
	return nil
}

func (m noopMailer) SendPasswordReset(_ context.Context, email, _ string) error {
	m.logger.Warn("no mailer configured, dropping password reset mail", "email", email)
	return nil
}

func (m noopMailer) SendVerification(_ context.Context, email, _ string) error {
	m.logger.Warn("no mailer configured, dropping verification mail", "email", email)
	return nil
}
