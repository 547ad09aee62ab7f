package domain

import "time"

const (
	ProviderGoogle  = "google"
	ProviderDiscord = "discord"
)

type ExternalIdentity struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:26;index;not null" json:"user_id"`
	Provider       string    `gorm:"size:32;index:idx_provider_uid,unique;not null" json:"provider"`
	ProviderUserID string    `gorm:"size:255;index:idx_provider_uid,unique;not null" json:"provider_user_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func IsKnownProvider(p string) bool {
	return p == ProviderGoogle || p == ProviderDiscord
}
