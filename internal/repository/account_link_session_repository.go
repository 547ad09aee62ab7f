package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrAccountLinkSessionNotFound = errors.New("account link session not found")

type AccountLinkSessionRepository interface {
	FindByID(id string) (*domain.AccountLinkSession, error)
	Save(session *domain.AccountLinkSession) error
	DeleteByID(id string) error
	DeleteByUserID(userID string) error
	DeleteExpired(now time.Time) (int64, error)
}

type accountLinkSessionRepository struct {
	db *gorm.DB
}

func NewAccountLinkSessionRepository(db *gorm.DB) AccountLinkSessionRepository {
	return &accountLinkSessionRepository{db: db}
}

func (r *accountLinkSessionRepository) FindByID(id string) (*domain.AccountLinkSession, error) {
	var session domain.AccountLinkSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountLinkSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *accountLinkSessionRepository) Save(session *domain.AccountLinkSession) error {
	return r.db.Save(session).Error
}

func (r *accountLinkSessionRepository) DeleteByID(id string) error {
	return r.db.Delete(&domain.AccountLinkSession{}, "id = ?", id).Error
}

func (r *accountLinkSessionRepository) DeleteByUserID(userID string) error {
	return r.db.Delete(&domain.AccountLinkSession{}, "user_id = ?", userID).Error
}

func (r *accountLinkSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Delete(&domain.AccountLinkSession{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}
