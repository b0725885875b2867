package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"residentportal/internal/domain"
	"residentportal/internal/observability"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session token already exists")
)

type RefreshSessionRepository interface {
	Create(s *domain.RefreshSession) error
	FindByToken(token string) (*domain.RefreshSession, error)
	// Rotate revokes the session identified by oldToken and inserts next in
	// one transaction. The old row must still be valid; otherwise
	// ErrSessionNotFound is returned and nothing changes. This is what bounds
	// every refresh value to at most one successful rotation.
	Rotate(oldToken string, next *domain.RefreshSession) error
	RevokeByToken(token string) error
	RevokeAllForUser(userID uint) error
	PurgeExpiredOrRevoked() (int64, error)
}

type GormRefreshSessionRepository struct{ db *gorm.DB }

func NewRefreshSessionRepository(db *gorm.DB) RefreshSessionRepository {
	return &GormRefreshSessionRepository{db: db}
}

func (r *GormRefreshSessionRepository) Create(s *domain.RefreshSession) error {
	err := r.db.Create(s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_session", "create", "conflict")
			return ErrDuplicateSession
		}
		observability.RecordRepositoryOperation(context.Background(), "refresh_session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "create", "success")
	return nil
}

func (r *GormRefreshSessionRepository) FindByToken(token string) (*domain.RefreshSession, error) {
	var s domain.RefreshSession
	err := r.db.Where("token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_session", "find_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "refresh_session", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "find_by_token", "success")
	return &s, nil
}

func (r *GormRefreshSessionRepository) Rotate(oldToken string, next *domain.RefreshSession) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Compare-and-revoke: the guarded UPDATE flips revoked only if the
		// row is still valid, so concurrent rotations of the same token race
		// on RowsAffected and exactly one wins.
		res := tx.Model(&domain.RefreshSession{}).
			Where("token = ? AND revoked = ? AND expires_at > ?", oldToken, false, time.Now()).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return tx.Create(next).Error
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_session", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "refresh_session", "rotate", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "rotate", "success")
	return nil
}

func (r *GormRefreshSessionRepository) RevokeByToken(token string) error {
	err := r.db.Model(&domain.RefreshSession{}).
		Where("token = ? AND revoked = ?", token, false).
		Update("revoked", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_session", "revoke_by_token", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "revoke_by_token", "success")
	return nil
}

func (r *GormRefreshSessionRepository) RevokeAllForUser(userID uint) error {
	err := r.db.Model(&domain.RefreshSession{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_session", "revoke_all_for_user", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "revoke_all_for_user", "success")
	return nil
}

func (r *GormRefreshSessionRepository) PurgeExpiredOrRevoked() (int64, error) {
	res := r.db.Where("expires_at < ? OR revoked = ?", time.Now(), true).Delete(&domain.RefreshSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_session", "purge", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_session", "purge", "success")
	return res.RowsAffected, nil
}
