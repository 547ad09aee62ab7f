package domain

import "time"

type Gender string

const (
	GenderMan   Gender = "man"
	GenderWoman Gender = "woman"
)

type User struct {
	ID            string    `gorm:"primaryKey;size:26" json:"id"`
	Email         string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	EmailVerified bool      `gorm:"not null;default:false" json:"email_verified"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	IconURL       *string   `gorm:"size:512" json:"icon_url,omitempty"`
	Gender        Gender    `gorm:"size:16;not null" json:"gender"`
	PasswordHash  *string   `gorm:"size:128" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a
// password. OAuth-only accounts have no hash until they set one.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
