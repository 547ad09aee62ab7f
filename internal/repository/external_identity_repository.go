package repository

import (
	"errors"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
)

var ErrExternalIdentityNotFound = errors.New("external identity not found")

type ExternalIdentityRepository interface {
	FindByProviderUserID(provider, providerUserID string) (*domain.ExternalIdentity, error)
	FindByUserIDAndProvider(userID, provider string) (*domain.ExternalIdentity, error)
	ListByUserID(userID string) ([]domain.ExternalIdentity, error)
	Create(identity *domain.ExternalIdentity) error
	DeleteByUserIDAndProvider(userID, provider string) error
}

type externalIdentityRepository struct {
	db *gorm.DB
}

func NewExternalIdentityRepository(db *gorm.DB) ExternalIdentityRepository {
	return &externalIdentityRepository{db: db}
}

func (r *externalIdentityRepository) FindByProviderUserID(provider, providerUserID string) (*domain.ExternalIdentity, error) {
	var identity domain.ExternalIdentity
	if err := r.db.First(&identity, "provider = ? AND provider_user_id = ?", provider, providerUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExternalIdentityNotFound
		}
		return nil, err
	}
	return &identity, nil
}

func (r *externalIdentityRepository) FindByUserIDAndProvider(userID, provider string) (*domain.ExternalIdentity, error) {
	var identity domain.ExternalIdentity
	if err := r.db.First(&identity, "user_id = ? AND provider = ?", userID, provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExternalIdentityNotFound
		}
		return nil, err
	}
	return &identity, nil
}

func (r *externalIdentityRepository) ListByUserID(userID string) ([]domain.ExternalIdentity, error) {
	var identities []domain.ExternalIdentity
	if err := r.db.Find(&identities, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

func (r *externalIdentityRepository) Create(identity *domain.ExternalIdentity) error {
	return r.db.Create(identity).Error
}

func (r *externalIdentityRepository) DeleteByUserIDAndProvider(userID, provider string) error {
	return r.db.Delete(&domain.ExternalIdentity{}, "user_id = ? AND provider = ?", userID, provider).Error
}
