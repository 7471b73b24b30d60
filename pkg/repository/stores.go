package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProvisionRequest describes a store to create for an owner.
type ProvisionRequest struct {
	OwnerUserID      string
	Name             string
	Slug             string
	Plan                 string
	StripeCustomerID     string
	StripeSubscriptionID string
}

// FindStoreByOwner returns the single store a user owns.
func (r *GormRepository) FindStoreByOwner(ctx context.Context, userID string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var store models.Store
	if err := db.Where("owner_user_id = ?", userID).First(&store).Error; err != nil {
		return nil, dbError(err, "repository.FindStoreByOwner", "store not found")
	}
	return &store, nil
}

func (r *GormRepository) FindStoreByID(ctx context.Context, id string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var store models.Store
	if err := db.Where("id = ?", id).First(&store).Error; err != nil {
		return nil, dbError(err, "repository.FindStoreByID", "store not found")
	}
	return &store, nil
}

func (r *GormRepository) FindStoreBySlug(ctx context.Context, slug string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var store models.Store
	if err := db.Where("slug = ?", strings.ToLower(slug)).First(&store).Error; err != nil {
		return nil, dbError(err, "repository.FindStoreBySlug", "store not found")
	}
	return &store, nil
}

// ProvisionStore creates a store and its owner membership in one
// transaction. When the owner already has a store nothing is written and
// the existing store is returned with created=false.
func (r *GormRepository) ProvisionStore(ctx context.Context, req ProvisionRequest) (*models.Store, bool, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	if req.OwnerUserID == "" {
		return nil, false, errs.Invalid("owner user id is required")
	}
	if req.Slug == "" {
		return nil, false, errs.Invalid("store slug is required")
	}
	if req.Plan == "" {
		req.Plan = "basic"
	}

	var (
		store   models.Store
		created bool
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("owner_user_id = ?", req.OwnerUserID).First(&store).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		store = models.Store{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Slug:        strings.ToLower(req.Slug),
			OwnerUserID: req.OwnerUserID,
			Plan:        req.Plan,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if req.StripeCustomerID != "" {
			store.StripeCustomerID = &req.StripeCustomerID
		}
		if req.StripeSubscriptionID != "" {
			store.StripeSubscriptionID = &req.StripeSubscriptionID
		}
		if err := tx.Create(&store).Error; err != nil {
			return err
		}
		member := models.StoreMember{
			ID:        uuid.NewString(),
			StoreID:   store.ID,
			UserID:    req.OwnerUserID,
			Role:      models.RoleOwner,
			CreatedAt: now,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent provision for the same owner
		existing, findErr := r.FindStoreByOwner(ctx, req.OwnerUserID)
		if findErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, dbError(err, "repository.ProvisionStore", "")
	}
	return &store, created, nil
}

// UpdateStoreSettings changes the name and description of a store, matched
// by both id and owner.
func (r *GormRepository) UpdateStoreSettings(ctx context.Context, storeID, ownerID, name, description string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	res := db.Model(&models.Store{}).
		Where("id = ? AND owner_user_id = ?", storeID, ownerID).
		Updates(map[string]interface{}{
			"name":        name,
			"description": description,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return nil, dbError(res.Error, "repository.UpdateStoreSettings", "")
	}
	if res.RowsAffected == 0 {
		return nil, errs.NotFound("store not found")
	}
	return r.FindStoreByID(ctx, storeID)
}

// ToggleStoreActive flips the active flag and returns the updated store.
func (r *GormRepository) ToggleStoreActive(ctx context.Context, storeID string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var store models.Store
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", storeID).First(&store).Error; err != nil {
			return err
		}
		store.Active = !store.Active
		store.UpdatedAt = time.Now()
		return tx.Model(&models.Store{}).Where("id = ?", storeID).
			Updates(map[string]interface{}{"active": store.Active, "updated_at": store.UpdatedAt}).Error
	})
	if err != nil {
		return nil, dbError(err, "repository.ToggleStoreActive", "store not found")
	}
	return &store, nil
}

// AttachBilling links an owner's existing store to the Stripe customer and
// subscription of a completed checkout and moves it to the purchased plan.
// Empty ids leave the stored value untouched.
func (r *GormRepository) AttachBilling(ctx context.Context, ownerID, customerID, subscriptionID, plan string) (*models.Store, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if plan != "" {
		updates["plan"] = plan
	}
	if customerID != "" {
		updates["stripe_customer_id"] = customerID
	}
	if subscriptionID != "" {
		updates["stripe_subscription_id"] = subscriptionID
	}
	res := db.Model(&models.Store{}).Where("owner_user_id = ?", ownerID).Updates(updates)
	if res.Error != nil {
		return nil, dbError(res.Error, "repository.AttachBilling", "")
	}
	if res.RowsAffected == 0 {
		return nil, errs.NotFound("store not found")
	}
	return r.FindStoreByOwner(ctx, ownerID)
}

// SyncSubscription records the subscription of every store billed to the
// Stripe customer and sets its active flag.
func (r *GormRepository) SyncSubscription(ctx context.Context, customerID, subscriptionID string, active bool) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&models.Store{}).Where("stripe_customer_id = ?", customerID).
		Updates(map[string]interface{}{
			"stripe_subscription_id": subscriptionID,
			"active":                 active,
			"updated_at":             time.Now(),
		})
	return res.RowsAffected, dbError(res.Error, "repository.SyncSubscription", "")
}

// DeactivateSubscription deactivates stores whose subscription was deleted.
func (r *GormRepository) DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&models.Store{}).Where("stripe_subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()})
	return res.RowsAffected, dbError(res.Error, "repository.DeactivateSubscription", "")
}

// StoreSummary is a store row enriched for the admin listing.
type StoreSummary struct {
	models.Store
	OwnerEmail    string `json:"owner_email"`
	MembersCount  int64  `json:"members_count"`
	ProductsCount int64  `json:"products_count"`
	OrdersCount   int64  `json:"orders_count"`
	RevenueCents  int64  `json:"revenue_cents"`
}

type countRow struct {
	GroupKey string
	N        int64
	Total    int64
}

func groupCounts(db *gorm.DB, model interface{}, key string) (map[string]countRow, error) {
	var rows []countRow
	if err := db.Model(model).Select(key + " AS group_key, COUNT(*) AS n").Group(key).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]countRow, len(rows))
	for _, row := range rows {
		out[row.GroupKey] = row
	}
	return out, nil
}

// ListStoreSummaries returns every store, newest first, with owner email,
// member, product and order counts and completed revenue.
func (r *GormRepository) ListStoreSummaries(ctx context.Context) ([]StoreSummary, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	const op = "repository.ListStoreSummaries"

	var stores []models.Store
	if err := db.Order("created_at DESC").Find(&stores).Error; err != nil {
		return nil, dbError(err, op, "")
	}
	members, err := groupCounts(db, &models.StoreMember{}, "store_id")
	if err != nil {
		return nil, dbError(err, op, "")
	}
	products, err := groupCounts(db, &models.Product{}, "store_id")
	if err != nil {
		return nil, dbError(err, op, "")
	}
	orders, err := groupCounts(db, &models.Order{}, "store_id")
	if err != nil {
		return nil, dbError(err, op, "")
	}
	var revenue []countRow
	if err := db.Model(&models.Order{}).
		Select("store_id AS group_key, COALESCE(SUM(total_cents), 0) AS total").
		Where("status = ?", models.StatusCompleted).
		Group("store_id").Scan(&revenue).Error; err != nil {
		return nil, dbError(err, op, "")
	}
	revenueByStore := make(map[string]int64, len(revenue))
	for _, row := range revenue {
		revenueByStore[row.GroupKey] = row.Total
	}

	ownerIDs := make([]string, 0, len(stores))
	for _, s := range stores {
		ownerIDs = append(ownerIDs, s.OwnerUserID)
	}
	emails := map[string]string{}
	if len(ownerIDs) > 0 {
		var users []models.User
		if err := db.Where("id IN ?", ownerIDs).Find(&users).Error; err != nil {
			return nil, dbError(err, op, "")
		}
		for _, u := range users {
			emails[u.ID] = u.Email
		}
	}

	out := make([]StoreSummary, 0, len(stores))
	for _, s := range stores {
		out = append(out, StoreSummary{
			Store:         s,
			OwnerEmail:    emails[s.OwnerUserID],
			MembersCount:  members[s.ID].N,
			ProductsCount: products[s.ID].N,
			OrdersCount:   orders[s.ID].N,
			RevenueCents:  revenueByStore[s.ID],
		})
	}
	return out, nil
}
