package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderInput is a manual order entered by a store owner.
type OrderInput struct {
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email"`
	CustomerPhone string           `json:"customer_phone"`
	Notes         string           `json:"notes"`
	Items         []OrderItemInput `json:"items"`
}

type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// ListOrders returns the store's orders newest first, optionally filtered by status.
func (r *GormRepository) ListOrders(ctx context.Context, storeID string, status models.OrderStatus, limit int) ([]models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("store_id = ?", storeID)
	if status != "" {
		if !status.Valid() {
			return nil, errs.Invalid("unknown order status " + string(status))
		}
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var orders []models.Order
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, dbError(err, "repository.ListOrders", "")
	}
	return orders, nil
}

// GetOrder loads an order of the store with its items.
func (r *GormRepository) GetOrder(ctx context.Context, storeID, id string) (*models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var order models.Order
	err = db.Preload("Items").Where("id = ? AND store_id = ?", id, storeID).First(&order).Error
	if err != nil {
		return nil, dbError(err, "repository.GetOrder", "order not found")
	}
	return &order, nil
}

// CreateOrder snapshots the requested active products of the store into a
// new order and computes its total.
func (r *GormRepository) CreateOrder(ctx context.Context, storeID string, in OrderInput) (*models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, errs.Invalid("order needs at least one item")
	}
	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity < 1 || item.Quantity > models.MaxItemQuantity {
			return nil, errs.Invalid(fmt.Sprintf("item quantity must be between 1 and %d", models.MaxItemQuantity))
		}
		ids = append(ids, item.ProductID)
	}

	now := time.Now()
	order := models.Order{
		ID:            uuid.NewString(),
		StoreID:       storeID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		Status:        models.StatusNew,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		var products []models.Product
		if err := tx.Where("store_id = ? AND active = ? AND id IN ?", storeID, true, ids).Find(&products).Error; err != nil {
			return err
		}
		byID := make(map[string]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}
		for _, item := range in.Items {
			p, ok := byID[item.ProductID]
			if !ok {
				return errs.Invalid("product " + item.ProductID + " is not available in this store")
			}
			productID := p.ID
			order.Items = append(order.Items, models.OrderItem{
				ID:             uuid.NewString(),
				OrderID:        order.ID,
				ProductID:      &productID,
				Title:          p.Title,
				Quantity:       item.Quantity,
				UnitPriceCents: p.PriceCents,
			})
		}
		total, err := models.ComputeTotals(order.Items)
		if err != nil {
			return err
		}
		order.TotalCents = total
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, dbError(err, "repository.CreateOrder", "")
	}
	return &order, nil
}

// TransitionOrder moves an order of the store to status to. The update is
// conditioned on the status that was read so concurrent changes are detected.
func (r *GormRepository) TransitionOrder(ctx context.Context, storeID, id string, to models.OrderStatus) (*models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	const op = "repository.TransitionOrder"

	var order models.Order
	if err := db.Where("id = ? AND store_id = ?", id, storeID).First(&order).Error; err != nil {
		return nil, dbError(err, op, "order not found")
	}
	if !order.Status.CanTransition(to) {
		return nil, &errs.Error{
			Code: errs.EInvalid,
			Msg:  "cannot move order from " + string(order.Status) + " to " + string(to),
			Op:   op,
		}
	}
	now := time.Now()
	res := db.Model(&models.Order{}).
		Where("id = ? AND store_id = ? AND status = ?", id, storeID, order.Status).
		Updates(map[string]interface{}{"status": to, "updated_at": now})
	if res.Error != nil {
		return nil, dbError(res.Error, op, "")
	}
	if res.RowsAffected == 0 {
		return nil, &errs.Error{Code: errs.EConflict, Msg: "order status changed concurrently", Op: op}
	}
	order.Status, order.UpdatedAt = to, now
	return &order, nil
}

// AdvanceOrder applies the single forward step from the order's current status.
func (r *GormRepository) AdvanceOrder(ctx context.Context, storeID, id string) (*models.Order, error) {
	order, err := r.GetOrder(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	next, ok := order.Status.Next()
	if !ok {
		return nil, errs.Invalid("order is " + string(order.Status) + " and cannot advance")
	}
	return r.TransitionOrder(ctx, storeID, id, next)
}

func (r *GormRepository) CancelOrder(ctx context.Context, storeID, id string) (*models.Order, error) {
	return r.TransitionOrder(ctx, storeID, id, models.StatusCancelled)
}

// StoreTotals are the dashboard aggregates of one store.
type StoreTotals struct {
	Products     int64 `json:"products"`
	Orders       int64 `json:"orders"`
	RevenueCents int64 `json:"revenue_cents"`
	Customers    int64 `json:"customers"`
}

// StoreTotals counts products and orders, distinct customer emails and the
// revenue of completed orders of the store.
func (r *GormRepository) StoreTotals(ctx context.Context, storeID string) (StoreTotals, error) {
	var t StoreTotals
	db, err := r.conn(ctx)
	if err != nil {
		return t, err
	}
	const op = "repository.StoreTotals"
	if err := db.Model(&models.Product{}).Where("store_id = ?", storeID).Count(&t.Products).Error; err != nil {
		return t, dbError(err, op, "")
	}
	if err := db.Model(&models.Order{}).Where("store_id = ?", storeID).Count(&t.Orders).Error; err != nil {
		return t, dbError(err, op, "")
	}
	if err := db.Model(&models.Order{}).Where("store_id = ? AND status = ?", storeID, models.StatusCompleted).
		Select("COALESCE(SUM(total_cents), 0)").Scan(&t.RevenueCents).Error; err != nil {
		return t, dbError(err, op, "")
	}
	if err := db.Model(&models.Order{}).Where("store_id = ? AND customer_email <> ?", storeID, "").
		Distinct("customer_email").Count(&t.Customers).Error; err != nil {
		return t, dbError(err, op, "")
	}
	return t, nil
}

// ProductSales is the sold quantity and revenue of one product title.
type ProductSales struct {
	Title        string `json:"title"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

// TopProducts ranks the store's sold items by quantity, ignoring cancelled orders.
func (r *GormRepository) TopProducts(ctx context.Context, storeID string, limit int) ([]ProductSales, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []ProductSales
	err = db.Table("order_items").
		Select("order_items.title AS title, SUM(order_items.quantity) AS quantity, SUM(order_items.line_total_cents) AS revenue_cents").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.store_id = ? AND orders.status <> ?", storeID, models.StatusCancelled).
		Group("order_items.title").
		Order("quantity DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "repository.TopProducts", "")
	}
	return rows, nil
}

// CompletedOrdersSince returns the store's completed orders created at or after since.
func (r *GormRepository) CompletedOrdersSince(ctx context.Context, storeID string, since time.Time) ([]models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = db.Where("store_id = ? AND status = ? AND created_at >= ?", storeID, models.StatusCompleted, since).
		Order("created_at ASC").Find(&orders).Error
	if err != nil {
		return nil, dbError(err, "repository.CompletedOrdersSince", "")
	}
	return orders, nil
}
