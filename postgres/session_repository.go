package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leadforge/authcore/session"
)

// SessionRepository implements session.Repository on top of the
// auth_sessions table.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository binds the repository to db.
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, record session.Record) error {
	m := sessionModel{
		SessionID: record.ID,
		UserID:    record.UserID,
		TokenHash: record.TokenHash[:],
		IPAddress: record.IPAddress,
		UserAgent: record.UserAgent,
		CreatedAt: record.CreatedAt,
		IsActive:  record.IsActive,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (session.Record, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).Where("session_id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, err
	}
	return toSessionRecord(m), nil
}

func (r *SessionRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	// An already-inactive or missing row is not an error: the caller only
	// cares that no active session with this ID remains.
	return r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", id).
		Update("is_active", false).Error
}

func (r *SessionRepository) InvalidateAllForUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("user_id = ? AND is_active", userID).
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id IN ?", ids).
		Update("is_active", false).Error
	if err != nil {
		// Return the IDs anyway so the caller can still plant invalidation
		// markers for them.
		return ids, err
	}
	return ids, nil
}

func (r *SessionRepository) LatestActiveForUser(ctx context.Context, userID string) (session.Record, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active", userID).
		Order("created_at DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, err
	}
	return toSessionRecord(m), nil
}
