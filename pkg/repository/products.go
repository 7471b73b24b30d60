package repository

import (
	"context"
	"strings"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
)

// ProductInput carries the editable product fields.
type ProductInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	SKU         string `json:"sku"`
	Active      *bool  `json:"active"`
}

func (in *ProductInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errs.Invalid("product title is required")
	}
	if in.PriceCents < 1 {
		return errs.Invalid("product price must be at least 1")
	}
	return nil
}

// ListProducts returns the store's products, newest first.
func (r *GormRepository) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]models.Product, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("store_id = ?", storeID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var products []models.Product
	if err := q.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, dbError(err, "repository.ListProducts", "")
	}
	return products, nil
}

func (r *GormRepository) GetProduct(ctx context.Context, storeID, id string) (*models.Product, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var product models.Product
	if err := db.Where("id = ? AND store_id = ?", id, storeID).First(&product).Error; err != nil {
		return nil, dbError(err, "repository.GetProduct", "product not found")
	}
	return &product, nil
}

func (r *GormRepository) CreateProduct(ctx context.Context, storeID string, in ProductInput) (*models.Product, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	product := models.Product{
		ID:          uuid.NewString(),
		StoreID:     storeID,
		Title:       in.Title,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		SKU:         in.SKU,
		Active:      in.Active == nil || *in.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&product).Error; err != nil {
		return nil, dbError(err, "repository.CreateProduct", "")
	}
	return &product, nil
}

func (r *GormRepository) UpdateProduct(ctx context.Context, storeID, id string, in ProductInput) (*models.Product, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"price_cents": in.PriceCents,
		"sku":         in.SKU,
		"updated_at":  time.Now(),
	}
	if in.Active != nil {
		fields["active"] = *in.Active
	}
	res := db.Model(&models.Product{}).Where("id = ? AND store_id = ?", id, storeID).Updates(fields)
	if res.Error != nil {
		return nil, dbError(res.Error, "repository.UpdateProduct", "")
	}
	if res.RowsAffected == 0 {
		return nil, errs.NotFound("product not found")
	}
	return r.GetProduct(ctx, storeID, id)
}

func (r *GormRepository) DeleteProduct(ctx context.Context, storeID, id string) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ? AND store_id = ?", id, storeID).Delete(&models.Product{})
	if res.Error != nil {
		return dbError(res.Error, "repository.DeleteProduct", "")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("product not found")
	}
	return nil
}

// ToggleProduct flips the active flag of a product in the store.
func (r *GormRepository) ToggleProduct(ctx context.Context, storeID, id string) (*models.Product, error) {
	product, err := r.GetProduct(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	product.Active = !product.Active
	product.UpdatedAt = time.Now()
	err = db.Model(&models.Product{}).Where("id = ? AND store_id = ?", id, storeID).
		Updates(map[string]interface{}{"active": product.Active, "updated_at": product.UpdatedAt}).Error
	if err != nil {
		return nil, dbError(err, "repository.ToggleProduct", "")
	}
	return product, nil
}
