package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrEmailVerificationSessionNotFound = errors.New("email verification session not found")

type EmailVerificationSessionRepository interface {
	FindByID(id string) (*domain.EmailVerificationSession, error)
	Save(session *domain.EmailVerificationSession) error
	DeleteByID(id string) error
	DeleteByUserID(userID string) error
	DeleteExpired(now time.Time) (int64, error)
}

type emailVerificationSessionRepository struct {
	db *gorm.DB
}

func NewEmailVerificationSessionRepository(db *gorm.DB) EmailVerificationSessionRepository {
	return &emailVerificationSessionRepository{db: db}
}

func (r *emailVerificationSessionRepository) FindByID(id string) (*domain.EmailVerificationSession, error) {
	var session domain.EmailVerificationSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmailVerificationSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *emailVerificationSessionRepository) Save(session *domain.EmailVerificationSession) error {
	return r.db.Save(session).Error
}

func (r *emailVerificationSessionRepository) DeleteByID(id string) error {
	return r.db.Delete(&domain.EmailVerificationSession{}, "id = ?", id).Error
}

func (r *emailVerificationSessionRepository) DeleteByUserID(userID string) error {
	return r.db.Delete(&domain.EmailVerificationSession{}, "user_id = ?", userID).Error
}

func (r *emailVerificationSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Delete(&domain.EmailVerificationSession{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
