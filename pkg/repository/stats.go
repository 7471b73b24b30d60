package repository

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/models"
)

// PlatformStats are the platform-wide totals shown on the admin dashboard.
type PlatformStats struct {
	TotalStores  int64 `json:"total_stores"`
	ActiveStores int64 `json:"active_stores"`
	TotalUsers   int64 `json:"total_users"`
	TotalOrders  int64 `json:"total_orders"`
	RevenueCents int64 `json:"revenue_cents"`
}

func (r *GormRepository) PlatformStats(ctx context.Context) (PlatformStats, error) {
	var s PlatformStats
	db, err := r.conn(ctx)
	if err != nil {
		return s, err
	}
	const op = "repository.PlatformStats"
	if err := db.Model(&models.Store{}).Count(&s.TotalStores).Error; err != nil {
		return s, dbError(err, op, "")
	}
	if err := db.Model(&models.Store{}).Where("active = ?", true).Count(&s.ActiveStores).Error; err != nil {
		return s, dbError(err, op, "")
	}
	if err := db.Model(&models.StoreMember{}).Distinct("user_id").Count(&s.TotalUsers).Error; err != nil {
		return s, dbError(err, op, "")
	}
	if err := db.Model(&models.Order{}).Count(&s.TotalOrders).Error; err != nil {
		return s, dbError(err, op, "")
	}
	if err := db.Model(&models.Order{}).Where("status = ?", models.StatusCompleted).
		Select("COALESCE(SUM(total_cents), 0)").Scan(&s.RevenueCents).Error; err != nil {
		return s, dbError(err, op, "")
	}
	return s, nil
}

// CountStoresCreated counts stores created in [from, to).
func (r *GormRepository) CountStoresCreated(ctx context.Context, from, to time.Time) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&models.Store{}).Where("created_at >= ? AND created_at < ?", from, to).Count(&n).Error
	return n, dbError(err, "repository.CountStoresCreated", "")
}

// PlanCount is the number of stores on one plan.
type PlanCount struct {
	Plan  string `json:"plan"`
	Count int64  `json:"count"`
}

// PlanDistribution counts stores per plan, most used first.
func (r *GormRepository) PlanDistribution(ctx context.Context) ([]PlanCount, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []PlanCount
	err = db.Model(&models.Store{}).Select("plan, COUNT(*) AS count").
		Group("plan").Order("COUNT(*) DESC").Order("plan ASC").Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "repository.PlanDistribution", "")
	}
	return rows, nil
}

func (r *GormRepository) RecentStores(ctx context.Context, limit int) ([]models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var stores []models.Store
	if err := db.Order("created_at DESC").Limit(limit).Find(&stores).Error; err != nil {
		return nil, dbError(err, "repository.RecentStores", "")
	}
	return stores, nil
}

// RecentCompletedOrders returns the latest completed orders across all stores.
func (r *GormRepository) RecentCompletedOrders(ctx context.Context, limit int) ([]models.Order, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = db.Where("status = ?", models.StatusCompleted).Order("created_at DESC").Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, dbError(err, "repository.RecentCompletedOrders", "")
	}
	return orders, nil
}
