package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/leadforge/authcore"
)

// UserRepository implements authcore.UserProvider on top of the auth_users
// table.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository binds the repository to db.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	var m userModel
	err := r.db.WithContext(ctx).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, err
	}
	return toUserRecord(m), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (authcore.UserRecord, error) {
	var m userModel
	err := r.db.WithContext(ctx).Where("user_id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if err != nil {
		return authcore.UserRecord{}, err
	}
	return toUserRecord(m), nil
}

// Create inserts a new account row. Used by provisioning, not by the engine.
func (r *UserRepository) Create(ctx context.Context, user authcore.UserRecord) error {
	now := time.Now().UTC()
	m := userModel{
		UserID:            user.ID,
		Email:             strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash:      user.PasswordHash,
		IsActive:          user.IsActive,
		IsVerified:        user.IsVerified,
		MFAEnabled:        user.MFAEnabled,
		MFASecret:         user.MFASecret,
		BackupCodeHashes:  joinBackupHashes(user.BackupCodeHashes),
		MFALastVerifiedAt: user.MFALastVerifiedAt,
		PasswordChangedAt: user.PasswordChangedAt,
		OrganizationID:    user.OrganizationID,
		OrganizationRole:  user.OrganizationRole,
		OrgRequiresMFA:    user.OrgRequiresMFA,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID string, attempts int, lockoutUntil *time.Time, failedAt time.Time) error {
	return r.update(ctx, userID, map[string]any{
		"failed_login_attempts": attempts,
		"lockout_until":         lockoutUntil,
		"last_failed_login_at":  failedAt,
	})
}

func (r *UserRepository) ClearLockout(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{
		"failed_login_attempts": 0,
		"lockout_until":         nil,
	})
}

func (r *UserRepository) UpdateMFAVerification(ctx context.Context, userID string, verifiedAt time.Time, backupCodeHashes [][32]byte) error {
	return r.update(ctx, userID, map[string]any{
		"mfa_last_verified_at": verifiedAt,
		"backup_code_hashes":   joinBackupHashes(backupCodeHashes),
	})
}

func (r *UserRepository) EnrollMFA(ctx context.Context, userID, secretBase32 string, backupCodeHashes [][32]byte) error {
	return r.update(ctx, userID, map[string]any{
		"mfa_enabled":        true,
		"mfa_secret":         secretBase32,
		"backup_code_hashes": joinBackupHashes(backupCodeHashes),
	})
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID, newHash string, changedAt time.Time) error {
	return r.update(ctx, userID, map[string]any{
		"password_hash":       newHash,
		"password_changed_at": changedAt,
	})
}

func (r *UserRepository) MarkVerified(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{"is_verified": true})
}

func (r *UserRepository) update(ctx context.Context, userID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
