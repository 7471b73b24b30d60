// Package tenancy decides who a request belongs to. The Resolver classifies
// an identity as platform admin, store owner or storeless user, and Decide
// maps that classification onto the guarded areas of the application.
package tenancy

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// Kind is the outcome of role resolution.
type Kind int

const (
	Unauthenticated Kind = iota
	PlatformAdmin
	StoreOwner
	NoStore
)

func (k Kind) String() string {
	switch k {
	case PlatformAdmin:
		return "platform_admin"
	case StoreOwner:
		return "store_owner"
	case NoStore:
		return "no_store"
	}
	return "unauthenticated"
}

// Identity is an authenticated user as reported by the identity provider.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Token  string `json:"-"`
}

// Resolution is the role of an identity. Store is set only for StoreOwner.
type Resolution struct {
	Kind     Kind
	Identity *Identity
	Store    *models.Store
}

// Active reports whether the resolved store may be operated normally.
func (r Resolution) Active() bool {
	return r.Kind == StoreOwner && r.Store != nil && r.Store.Active
}

// AdminChecker answers whether a user is a platform admin.
type AdminChecker interface {
	IsPlatformAdmin(ctx context.Context, userID string) (bool, error)
}

// Repository is the data the resolver reads. Its IsPlatformAdmin is the
// fallback when the primary admin check fails.
type Repository interface {
	AdminChecker
	FindStoreByOwner(ctx context.Context, userID string) (*models.Store, error)
	StoreTotals(ctx context.Context, storeID string) (repository.StoreTotals, error)
	ListOrders(ctx context.Context, storeID string, status models.OrderStatus, limit int) ([]models.Order, error)
	TopProducts(ctx context.Context, storeID string, limit int) ([]repository.ProductSales, error)
	CompletedOrdersSince(ctx context.Context, storeID string, since time.Time) ([]models.Order, error)
}

type Resolver struct {
	admin  AdminChecker
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewResolver builds a resolver. admin may be nil, in which case only the
// repository is consulted.
func NewResolver(admin AdminChecker, repo Repository, logger *zap.Logger) *Resolver {
	return &Resolver{admin: admin, repo: repo, logger: logger, now: time.Now}
}

// Resolve classifies the identity. Lookup failures resolve toward the less
// privileged outcome and are never returned as errors.
func (r *Resolver) Resolve(ctx context.Context, id *Identity) Resolution {
	if id == nil || id.UserID == "" {
		return Resolution{Kind: Unauthenticated}
	}
	if r.isAdmin(ctx, id.UserID) {
		return Resolution{Kind: PlatformAdmin, Identity: id}
	}

	store, err := r.repo.FindStoreByOwner(ctx, id.UserID)
	if err != nil {
		if !errs.Is(err, errs.ENotFound) {
			r.logger.Warn("Store lookup failed, treating as no store", zap.String("user_id", id.UserID), zap.Error(err))
		}
		return Resolution{Kind: NoStore, Identity: id}
	}
	return Resolution{Kind: StoreOwner, Identity: id, Store: store}
}

func (r *Resolver) isAdmin(ctx context.Context, userID string) bool {
	if r.admin != nil {
		ok, err := r.admin.IsPlatformAdmin(ctx, userID)
		if err == nil {
			return ok
		}
		r.logger.Debug("Admin check failed, using direct lookup", zap.String("user_id", userID), zap.Error(err))
	}
	ok, err := r.repo.IsPlatformAdmin(ctx, userID)
	if err != nil {
		r.logger.Warn("Admin lookup failed, treating as not admin", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}
