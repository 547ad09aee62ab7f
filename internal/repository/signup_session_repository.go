package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrSignupSessionNotFound = errors.New("signup session not found")

type SignupSessionRepository interface {
	FindByID(id string) (*domain.SignupSession, error)
	Save(session *domain.SignupSession) error
	DeleteByID(id string) error
	DeleteByEmail(email string) error
	DeleteExpired(now time.Time) (int64, error)
}

type signupSessionRepository struct {
	db *gorm.DB
}

func NewSignupSessionRepository(db *gorm.DB) SignupSessionRepository {
	return &signupSessionRepository{db: db}
}

func (r *signupSessionRepository) FindByID(id string) (*domain.SignupSession, error) {
	var session domain.SignupSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSignupSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *signupSessionRepository) Save(session *domain.SignupSession) error {
	return r.db.Save(session).Error
}

func (r *signupSessionRepository) DeleteByID(id string) error {
	return r.db.Delete(&domain.SignupSession{}, "id = ?", id).Error
}

func (r *signupSessionRepository) DeleteByEmail(email string) error {
	return r.db.Delete(&domain.SignupSession{}, "email = ?", email).Error
}

func (r *signupSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Delete(&domain.SignupSession{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
