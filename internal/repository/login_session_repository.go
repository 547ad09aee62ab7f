package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrLoginSessionNotFound = errors.New("login session not found")

type LoginSessionRepository interface {
	FindByID(id string) (*domain.LoginSession, error)
	Create(session *domain.LoginSession) error
	DeleteByID(id string) error
	DeleteByUserID(userID string) error
	DeleteExpired(now time.Time) (int64, error)
}

type loginSessionRepository struct {
	db *gorm.DB
}

func NewLoginSessionRepository(db *gorm.DB) LoginSessionRepository {
	return &loginSessionRepository{db: db}
}

func (r *loginSessionRepository) FindByID(id string) (*domain.LoginSession, error) {
	var session domain.LoginSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoginSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *loginSessionRepository) Create(session *domain.LoginSession) error {
	return r.db.Create(session).Error
}

func (r *loginSessionRepository) DeleteByID(id string) error {
	return r.db.Delete(&domain.LoginSession{}, "id = ?", id).Error
}

func (r *loginSessionRepository) DeleteByUserID(userID string) error {
	return r.db.Delete(&domain.LoginSession{}, "user_id = ?", userID).Error
}

func (r *loginSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Delete(&domain.LoginSession{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
