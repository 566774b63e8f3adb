package rls

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Setting keys read by the database policies via current_setting().
const (
	settingUserID        = "app.user_id"
	settingOrgID         = "app.organization_id"
	settingOrgRole       = "app.organization_role"
	settingIsGlobalAdmin = "app.is_global_admin"
)

// ErrEmptyUserID rejects a binding attempt with no authenticated user.
var ErrEmptyUserID = errors.New("rls: identity has no user id")

// Identity is the per-request tenant context bound into the database
// session. OrganizationID and OrganizationRole come from the authenticated
// user's persisted membership, never from request input.
type Identity struct {
	UserID           string
	OrganizationID   string
	OrganizationRole string
	IsGlobalAdmin    bool
}

// Config holds the binder's static policy inputs.
type Config struct {
	// AdminEmails is the allow-list that grants the global-admin bypass.
	// Matching is case-insensitive.
	AdminEmails []string
}

// Binder writes identity settings into database sessions and answers the
// global-admin allow-list check.
type Binder struct {
	adminEmails map[string]struct{}
}

// NewBinder builds a Binder from the configured admin allow-list.
func NewBinder(cfg Config) *Binder {
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Binder{adminEmails: admins}
}

// IsGlobalAdmin reports whether email is on the admin allow-list.
func (b *Binder) IsGlobalAdmin(email string) bool {
	_, ok := b.adminEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// BindTransaction writes the identity into tx with transaction scope
// (set_config local=true): the settings vanish at COMMIT/ROLLBACK, so a
// pooled connection can never leak them into the next request. tx must be a
// running transaction or the settings are lost immediately.
func (b *Binder) BindTransaction(ctx context.Context, tx *gorm.DB, identity Identity) error {
	return bind(ctx, tx, identity, true)
}

// BindConnection writes the identity with connection scope (local=false).
// The settings persist for the life of the pooled connection, which is only
// safe when the pool resets settings on checkout. Prefer BindTransaction.
func (b *Binder) BindConnection(ctx context.Context, db *gorm.DB, identity Identity) error {
	return bind(ctx, db, identity, false)
}

// Scoped runs fn inside a transaction with the identity bound for its
// duration. This is the way tenant-scoped work should run.
func (b *Binder) Scoped(ctx context.Context, db *gorm.DB, identity Identity, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.BindTransaction(ctx, tx, identity); err != nil {
			return err
		}
		return fn(tx)
	})
}

func bind(ctx context.Context, db *gorm.DB, identity Identity, local bool) error {
	if identity.UserID == "" {
		return ErrEmptyUserID
	}

	settings := []struct {
		key   string
		value string
	}{
		{settingUserID, identity.UserID},
		{settingOrgID, identity.OrganizationID},
		{settingOrgRole, identity.OrganizationRole},
		{settingIsGlobalAdmin, strconv.FormatBool(identity.IsGlobalAdmin)},
	}

	for _, s := range settings {
		err := db.WithContext(ctx).
			Exec("SELECT set_config(?, ?, ?)", s.key, s.value, local).Error
		if err != nil {
			return err
		}
	}
	return nil
}
