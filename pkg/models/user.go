package models

import (
	"time"
)

// User mirrors the identity provider's record. The provider stays the
// source of truth for credentials; this row exists so admin listings can
// show emails and sign-in times next to stores.
type User struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email            string     `gorm:"type:varchar(255);index;not null" json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// PlatformAdmin is a membership-only record: the row exists or it does not.
type PlatformAdmin struct {
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (PlatformAdmin) TableName() string {
	return "platform_admins"
}
