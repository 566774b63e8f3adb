package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadforge/authcore/rls"
)

// TenantIdentity resolves the database tenant context for an authenticated
// user: organization membership comes from the persisted user row, never from
// request input, and global-admin status from the configured allow-list.
// Bind the result through [Engine.Tenants] before running tenant-scoped
// queries.
func (e *Engine) TenantIdentity(ctx context.Context, userID string) (rls.Identity, error) {
	if e.closed.Load() {
		return rls.Identity{}, ErrEngineClosed
	}

	user, err := e.users.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return rls.Identity{}, err
	}
	if err != nil {
		return rls.Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return rls.Identity{
		UserID:           user.ID,
		OrganizationID:   user.OrganizationID,
		OrganizationRole: user.OrganizationRole,
		IsGlobalAdmin:    e.tenants.IsGlobalAdmin(user.Email),
	}, nil
}
