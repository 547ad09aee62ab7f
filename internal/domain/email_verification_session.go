package domain

import "time"

const EmailVerificationSessionTTL = 30 * time.Minute

type EmailVerificationSession struct {
	ID     string `gorm:"primaryKey;size:26" json:"id"`
	UserID string `gorm:"size:26;index;not null" json:"user_id"`
	// Email is the address being verified, which may differ from the
	// user's current address during an email change.
	Email      string    `gorm:"size:255;not null" json:"email"`
	SecretHash string    `gorm:"size:128;not null" json:"-"`
	Code       string    `gorm:"size:8;not null" json:"-"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *EmailVerificationSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
