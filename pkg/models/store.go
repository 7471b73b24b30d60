package models

import (
	"time"
)

// Store is the tenant unit. owner_user_id is unique: a user owns at most
// one store.
type Store struct {
	ID                   string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                 string    `gorm:"type:varchar(200);not null" json:"name"`
	Description          string    `gorm:"type:text" json:"description"`
	Slug                 string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`
	OwnerUserID          string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"owner_user_id"`
	Plan                 string    `gorm:"type:varchar(64);not null;default:'basic'" json:"plan"`
	Active               bool      `gorm:"not null" json:"active"`
	StripeCustomerID     *string   `gorm:"type:varchar(255);index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `gorm:"type:varchar(255);index" json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Store) TableName() string {
	return "stores"
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

type StoreMember struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StoreID   string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_store_member" json:"store_id"`
	UserID    string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_store_member;index" json:"user_id"`
	Role      MemberRole `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

func (StoreMember) TableName() string {
	return "store_members"
}
