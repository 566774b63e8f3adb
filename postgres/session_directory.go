package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/leadforge/authcore/rls"
	"github.com/leadforge/authcore/session"
)

// SessionDirectory answers tenant-scoped session listings. Every query runs
// inside a transaction with the caller's identity bound, so the row-level
// policies on auth_sessions apply; the explicit user filter stays as a second
// fence for roles that bypass RLS.
type SessionDirectory struct {
	db     *gorm.DB
	binder *rls.Binder
}

// NewSessionDirectory builds a directory over db, binding identities through
// binder.
func NewSessionDirectory(db *gorm.DB, binder *rls.Binder) *SessionDirectory {
	return &SessionDirectory{db: db, binder: binder}
}

// ListActiveForUser returns the identity's active sessions, newest first.
func (d *SessionDirectory) ListActiveForUser(ctx context.Context, identity rls.Identity) ([]session.Record, error) {
	var models []sessionModel
	err := d.binder.Scoped(ctx, d.db, identity, func(tx *gorm.DB) error {
		return tx.
			Where("user_id = ? AND is_active", identity.UserID).
			Order("created_at DESC").
			Find(&models).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]session.Record, len(models))
	for i, m := range models {
		records[i] = toSessionRecord(m)
	}
	return records, nil
}
