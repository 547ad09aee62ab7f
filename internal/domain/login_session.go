package domain

import "time"

const LoginSessionTTL = 30 * 24 * time.Hour

type LoginSession struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"`
	UserID     string    `gorm:"size:26;index;not null" json:"user_id"`
	SecretHash string    `gorm:"size:128;not null" json:"-"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *LoginSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
