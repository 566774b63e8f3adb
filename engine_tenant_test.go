package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestTenantIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.AdminEmails = []string{"Root@Example.com"}
	te := newTestEngine(t, cfg,
		UserRecord{ID: "user-1", Email: "ida@example.com", OrganizationID: "org-9", OrganizationRole: "owner"},
		UserRecord{ID: "user-2", Email: "root@example.com", OrganizationID: "org-1"},
	)
	ctx := context.Background()

	identity, err := te.engine.TenantIdentity(ctx, "user-1")
	if err != nil {
		t.Fatalf("TenantIdentity: %v", err)
	}
	if identity.UserID != "user-1" || identity.OrganizationID != "org-9" || identity.OrganizationRole != "owner" {
		t.Fatalf("identity = %+v", identity)
	}
	if identity.IsGlobalAdmin {
		t.Fatal("unexpected global admin")
	}

	// The allow-list match is case-insensitive.
	admin, err := te.engine.TenantIdentity(ctx, "user-2")
	if err != nil {
		t.Fatalf("TenantIdentity admin: %v", err)
	}
	if !admin.IsGlobalAdmin {
		t.Fatal("allow-listed email not recognized as global admin")
	}

	if _, err := te.engine.TenantIdentity(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user error = %v", err)
	}
}
