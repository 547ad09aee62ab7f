package domain

import "time"

// Signup sessions are two-phase: a short window to prove the email, then
// a longer one to finish registration once the code has been confirmed.
const (
	SignupSessionTTL         = 30 * time.Minute
	SignupSessionVerifiedTTL = time.Hour
)

type SignupSession struct {
	ID            string    `gorm:"primaryKey;size:26" json:"id"`
	Email         string    `gorm:"size:255;index;not null" json:"email"`
	SecretHash    string    `gorm:"size:128;not null" json:"-"`
	Code          string    `gorm:"size:8;not null" json:"-"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	ExpiresAt     time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *SignupSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
