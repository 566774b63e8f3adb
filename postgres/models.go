package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadforge/authcore"
	"github.com/leadforge/authcore/session"
)

const backupCodeHashSize = 32

type userModel struct {
	UserID       string `gorm:"column:user_id;primaryKey"`
	Email        string `gorm:"column:email"`
	PasswordHash string `gorm:"column:password_hash"`
	IsActive     bool   `gorm:"column:is_active"`
	IsVerified   bool   `gorm:"column:is_verified"`

	MFAEnabled        bool       `gorm:"column:mfa_enabled"`
	MFASecret         string     `gorm:"column:mfa_secret"`
	BackupCodeHashes  []byte     `gorm:"column:backup_code_hashes"`
	MFALastVerifiedAt *time.Time `gorm:"column:mfa_last_verified_at"`

	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	LockoutUntil        *time.Time `gorm:"column:lockout_until"`
	LastFailedLoginAt   *time.Time `gorm:"column:last_failed_login_at"`
	PasswordChangedAt   *time.Time `gorm:"column:password_changed_at"`

	OrganizationID   string `gorm:"column:organization_id"`
	OrganizationRole string `gorm:"column:organization_role"`
	OrgRequiresMFA   bool   `gorm:"column:org_requires_mfa"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "auth_users" }

type sessionModel struct {
	SessionID uuid.UUID `gorm:"column:session_id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	TokenHash []byte    `gorm:"column:token_hash"`
	IPAddress string    `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at"`
	IsActive  bool      `gorm:"column:is_active"`
}

func (sessionModel) TableName() string { return "auth_sessions" }

func toUserRecord(m userModel) authcore.UserRecord {
	return authcore.UserRecord{
		ID:                m.UserID,
		Email:             m.Email,
		PasswordHash:      m.PasswordHash,
		IsActive:          m.IsActive,
		IsVerified:        m.IsVerified,
		MFAEnabled:        m.MFAEnabled,
		MFASecret:         m.MFASecret,
		BackupCodeHashes:  splitBackupHashes(m.BackupCodeHashes),
		MFALastVerifiedAt: m.MFALastVerifiedAt,

		FailedLoginAttempts: m.FailedLoginAttempts,
		LockoutUntil:        m.LockoutUntil,
		LastFailedLoginAt:   m.LastFailedLoginAt,
		PasswordChangedAt:   m.PasswordChangedAt,

		OrganizationID:   m.OrganizationID,
		OrganizationRole: m.OrganizationRole,
		OrgRequiresMFA:   m.OrgRequiresMFA,
	}
}

func toSessionRecord(m sessionModel) session.Record {
	record := session.Record{
		ID:        m.SessionID,
		UserID:    m.UserID,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		CreatedAt: m.CreatedAt,
		IsActive:  m.IsActive,
	}
	copy(record.TokenHash[:], m.TokenHash)
	return record
}

// Backup-code hashes are persisted as one BYTEA of concatenated fixed-size
// SHA-256 digests.
func joinBackupHashes(hashes [][32]byte) []byte {
	if len(hashes) == 0 {
		return nil
	}
	out := make([]byte, 0, len(hashes)*backupCodeHashSize)
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

func splitBackupHashes(raw []byte) [][32]byte {
	if len(raw) == 0 || len(raw)%backupCodeHashSize != 0 {
		return nil
	}
	hashes := make([][32]byte, len(raw)/backupCodeHashSize)
	for i := range hashes {
		copy(hashes[i][:], raw[i*backupCodeHashSize:])
	}
	return hashes
}
