package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrPasswordResetSessionNotFound = errors.New("password reset session not found")

type PasswordResetSessionRepository interface {
	FindByID(id string) (*domain.PasswordResetSession, error)
	Save(session *domain.PasswordResetSession) error
	DeleteByID(id string) error
	DeleteByUserID(userID string) error
	DeleteExpired(now time.Time) (int64, error)
}

type passwordResetSessionRepository struct {
	db *gorm.DB
}

func NewPasswordResetSessionRepository(db *gorm.DB) PasswordResetSessionRepository {
	return &passwordResetSessionRepository{db: db}
}

func (r *passwordResetSessionRepository) FindByID(id string) (*domain.PasswordResetSession, error) {
	var session domain.PasswordResetSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPasswordResetSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *passwordResetSessionRepository) Save(session *domain.PasswordResetSession) error {
	return r.db.Save(session).Error
}

func (r *passwordResetSessionRepository) DeleteByID(id string) error {
	return r.db.Delete(&domain.PasswordResetSession{}, "id = ?", id).Error
}

func (r *passwordResetSessionRepository) DeleteByUserID(userID string) error {
	return r.db.Delete(&domain.PasswordResetSession{}, "user_id = ?", userID).Error
}

func (r *passwordResetSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Delete(&domain.PasswordResetSession{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
