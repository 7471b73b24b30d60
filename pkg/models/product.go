package models

import (
	"time"
)

// Product belongs to exactly one store; every query must carry store_id.
type Product struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StoreID     string    `gorm:"type:varchar(36);not null;index" json:"store_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	SKU         string    `gorm:"type:varchar(100)" json:"sku"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
