package models

import (
	"strings"
	"time"
)

// Plan is a platform-level catalog entry; it is not tenant scoped.
type Plan struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name          string    `gorm:"type:varchar(200);not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	StripePriceID string    `gorm:"type:varchar(255)" json:"stripe_price_id"`
	PriceCents    int64     `gorm:"not null" json:"price_cents"`
	Features      []string  `gorm:"type:text;serializer:json" json:"features"`
	Active        bool      `gorm:"not null" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// CleanFeatures trims every feature and drops empty entries.
func CleanFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// DefaultPlans seeds an empty catalog.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:          "basic",
			Name:        "Basic",
			Description: "For new stores",
			PriceCents:  2900,
			Features:    []string{"Up to 100 products", "Email support", "1GB image storage", "Basic reports"},
			Active:      true,
		},
		{
			ID:          "pro",
			Name:        "Pro",
			Description: "For growing stores",
			PriceCents:  7900,
			Features:    []string{"Unlimited products", "Phone and email support", "10GB image storage", "Advanced reports", "Detailed analytics", "Discounts and coupons"},
			Active:      true,
		},
	}
}
