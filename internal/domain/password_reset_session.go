package domain

import "time"

const PasswordResetSessionTTL = 30 * time.Minute

type PasswordResetSession struct {
	ID         string `gorm:"primaryKey;size:26" json:"id"`
	UserID     string `gorm:"size:26;index;not null" json:"user_id"`
	// Email is denormalized so a concurrent address change invalidates
	// the reset flow instead of resetting the wrong account.
	Email         string    `gorm:"size:255;not null" json:"email"`
	SecretHash    string    `gorm:"size:128;not null" json:"-"`
	Code          string    `gorm:"size:8;not null" json:"-"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	ExpiresAt     time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *PasswordResetSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
