package database

import (
	"go-identity-service/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.LoginSession{},
		&domain.SignupSession{},
		&domain.PasswordResetSession{},
		&domain.EmailVerificationSession{},
		&domain.AccountLinkSession{},
		&domain.ExternalIdentity{},
	)
}
