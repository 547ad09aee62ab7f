package domain

import "time"

const AccountLinkSessionTTL = 30 * time.Minute

// AccountLinkSession proves that one person controls both a local
// account (by emailed code) and an external provider identity before the
// two are linked permanently. Code is nil until the user requests the
// challenge email.
type AccountLinkSession struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	UserID         string    `gorm:"size:26;index;not null" json:"user_id"`
	Email          string    `gorm:"size:255;not null" json:"email"`
	SecretHash     string    `gorm:"size:128;not null" json:"-"`
	Code           *string   `gorm:"size:8" json:"-"`
	Provider       string    `gorm:"size:32;not null" json:"provider"`
	ProviderUserID string    `gorm:"size:255;not null" json:"provider_user_id"`
	ExpiresAt      time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *AccountLinkSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
