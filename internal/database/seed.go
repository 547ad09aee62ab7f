package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/security"
)

// SeedReport describes what SeedSync changed.
type SeedReport struct {
	Noop        bool
	CreatedUser string
}

const (
	devSeedEmail    = "dev@example.com"
	devSeedPassword = "devpassword"
)

// SeedSync provisions a known development account so local environments
// have something to log in with. It is idempotent: a second run is a
// noop. email overrides the default address when non-empty.
func SeedSync(db *gorm.DB, email string) (SeedReport, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		email = devSeedEmail
	}

	var existing domain.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return SeedReport{Noop: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return SeedReport{}, fmt.Errorf("look up seed user: %w", err)
	}

	hash, err := security.HashPassword(devSeedPassword)
	if err != nil {
		return SeedReport{}, fmt.Errorf("hash seed password: %w", err)
	}
	user := domain.User{
		ID:            security.NewID(),
		Email:         email,
		EmailVerified: true,
		Name:          "Dev User",
		Gender:        domain.GenderMan,
		PasswordHash:  &hash,
	}
	if err := db.Create(&user).Error; err != nil {
		return SeedReport{}, fmt.Errorf("create seed user: %w", err)
	}
	return SeedReport{CreatedUser: email}, nil
}

// UserExists reports whether an account with the given email is present.
func UserExists(db *gorm.DB, email string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		email = devSeedEmail
	}
	var count int64
	if err := db.Model(&domain.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// VerifyEmail flips a user's email to verified, for local flows where
// no mail is actually delivered.
func VerifyEmail(db *gorm.DB, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return errors.New("email is required")
	}

	var user domain.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return err
	}
	return db.Model(&user).Updates(map[string]any{
		"email_verified": true,
		"updated_at":     time.Now(),
	}).Error
}
