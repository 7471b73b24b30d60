package models

import (
	"math"
	"time"

	"github.com/example/storefront/pkg/errs"
)

// MaxItemQuantity caps the quantity of one order line.
const MaxItemQuantity = 1_000_000

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var nextStatus = map[OrderStatus]OrderStatus{
	StatusNew:        StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusCompleted,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal orders accept no further transition.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the single forward step from s, if any.
func (s OrderStatus) Next() (OrderStatus, bool) {
	n, ok := nextStatus[s]
	return n, ok
}

// CanTransition allows one forward step, or cancellation of a non-terminal order.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if to == StatusCancelled {
		return s.Valid() && !s.Terminal()
	}
	n, ok := s.Next()
	return ok && n == to
}

type Order struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	StoreID       string      `gorm:"type:varchar(36);not null;index" json:"store_id"`
	CustomerName  string      `gorm:"type:varchar(200)" json:"customer_name"`
	CustomerEmail string      `gorm:"type:varchar(255);index" json:"customer_email"`
	CustomerPhone string      `gorm:"type:varchar(50)" json:"customer_phone"`
	Status        OrderStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`
	TotalCents    int64       `gorm:"not null;default:0" json:"total_cents"`
	Notes         string      `gorm:"type:text" json:"notes,omitempty"`
	Items         []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is a snapshot of the product at the time of sale, so historical
// orders stay stable when the product changes or is deleted.
type OrderItem struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID        string  `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID      *string `gorm:"type:varchar(36)" json:"product_id,omitempty"`
	Title          string  `gorm:"type:varchar(255);not null" json:"title"`
	Quantity       int64   `gorm:"not null" json:"quantity"`
	UnitPriceCents int64   `gorm:"not null" json:"unit_price_cents"`
	LineTotalCents int64   `gorm:"not null" json:"line_total_cents"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// ComputeTotals fills line totals and returns the order total. Negative
// values and totals that do not fit in int64 are rejected.
func ComputeTotals(items []OrderItem) (int64, error) {
	var total int64
	for i := range items {
		qty, price := items[i].Quantity, items[i].UnitPriceCents
		if qty < 0 || price < 0 {
			return 0, errs.Invalid("order amounts must not be negative")
		}
		if qty != 0 && price > math.MaxInt64/qty {
			return 0, errs.Invalid("order line total is too large")
		}
		line := qty * price
		if total > math.MaxInt64-line {
			return 0, errs.Invalid("order total is too large")
		}
		items[i].LineTotalCents = line
		total += line
	}
	return total, nil
}

// All returns every model managed by the relational store, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&PlatformAdmin{},
		&Plan{},
		&Store{},
		&StoreMember{},
		&Product{},
		&Order{},
		&OrderItem{},
	}
}
