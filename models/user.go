package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles recognized by the cooldown gate. Admins bypass the download cooldown.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account. Passwords are stored as bcrypt hashes only.
// LastDownloadAt is the authoritative cooldown clock: nil means no active
// cooldown, otherwise the next download is admitted at LastDownloadAt+cooldown.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email          string         `gorm:"size:255" json:"email"`
	PasswordHash   string         `gorm:"size:255" json:"-"`
	Provider       string         `gorm:"size:32" json:"provider"`
	ProviderID     string         `gorm:"size:255" json:"provider_id"`
	Role           string         `gorm:"size:16;not null;default:user" json:"role"`
	AvatarURL      string         `gorm:"size:512" json:"avatar_url"`
	LastDownloadAt *time.Time     `json:"last_download_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user is exempt from the download cooldown.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
