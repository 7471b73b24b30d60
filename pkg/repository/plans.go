package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"gorm.io/gorm"
)

// ListPlans returns the catalog cheapest first. With activeOnly set, inactive
// plans are left out.
func (r *GormRepository) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Order("price_cents ASC").Order("id ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var plans []models.Plan
	if err := q.Find(&plans).Error; err != nil {
		return nil, dbError(err, "repository.ListPlans", "")
	}
	return plans, nil
}

func (r *GormRepository) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var plan models.Plan
	if err := db.Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, dbError(err, "repository.GetPlan", "plan not found")
	}
	return &plan, nil
}

func validatePlan(plan *models.Plan) error {
	plan.Features = models.CleanFeatures(plan.Features)
	switch {
	case plan.ID == "":
		return errs.Invalid("plan id is required")
	case plan.Name == "":
		return errs.Invalid("plan name is required")
	case plan.PriceCents < 0:
		return errs.Invalid("plan price must not be negative")
	}
	return nil
}

func (r *GormRepository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := validatePlan(plan); err != nil {
		return err
	}
	now := time.Now()
	plan.CreatedAt, plan.UpdatedAt = now, now
	if err := db.Create(plan).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &errs.Error{Code: errs.EConflict, Msg: "plan already exists", Op: "repository.CreatePlan"}
		}
		return dbError(err, "repository.CreatePlan", "")
	}
	return nil
}

// UpdatePlan overwrites every editable column of an existing plan.
func (r *GormRepository) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if err := validatePlan(plan); err != nil {
		return err
	}
	plan.UpdatedAt = time.Now()
	res := db.Model(&models.Plan{}).Where("id = ?", plan.ID).
		Select("name", "description", "stripe_price_id", "price_cents", "features", "active", "updated_at").
		Updates(plan)
	if res.Error != nil {
		return dbError(res.Error, "repository.UpdatePlan", "")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("plan not found")
	}
	return nil
}

func (r *GormRepository) DeletePlan(ctx context.Context, id string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Plan{})
	if res.Error != nil {
		return dbError(res.Error, "repository.DeletePlan", "")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("plan not found")
	}
	return nil
}

// SeedPlans inserts plans only when the catalog is empty.
func (r *GormRepository) SeedPlans(ctx context.Context, plans []models.Plan) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	var n int64
	if err := db.Model(&models.Plan{}).Count(&n).Error; err != nil {
		return dbError(err, "repository.SeedPlans", "")
	}
	if n > 0 || len(plans) == 0 {
		return nil
	}
	now := time.Now()
	for i := range plans {
		plans[i].CreatedAt, plans[i].UpdatedAt = now, now
	}
	if err := db.Create(&plans).Error; err != nil {
		return dbError(err, "repository.SeedPlans", "")
	}
	r.logger.Info("Seeded plan catalog")
	return nil
}
