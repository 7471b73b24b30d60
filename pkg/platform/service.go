// Package platform is the admin area: platform statistics, store and user
// management, the plan catalog and reports. Reads and mutations go through
// the named procedures first and fall back to the local registry over the
// repository when the procedures service cannot be reached.
package platform

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/procedures"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// Repository is the direct data access used by the admin area.
type Repository interface {
	procedures.Backend
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	CreatePlan(ctx context.Context, plan *models.Plan) error
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	DeletePlan(ctx context.Context, id string) error
	CountStoresCreated(ctx context.Context, from, to time.Time) (int64, error)
	PlanDistribution(ctx context.Context) ([]repository.PlanCount, error)
	RecentStores(ctx context.Context, limit int) ([]models.Store, error)
	RecentCompletedOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// AuditReader reads the latest audit entries.
type AuditReader interface {
	RecentAuditLogs(ctx context.Context, limit int64) ([]*repository.AuditLog, error)
}

// Cache stores JSON documents with an expiry.
type Cache interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Del(ctx context.Context, keys ...string) error
}

type Options struct {
	// Remote is the procedures client; nil runs every procedure locally.
	Remote      procedures.Caller
	Repo        Repository
	Audits      AuditReader
	Cache       Cache
	Recorder    audit.Recorder
	DefaultPlan string
	Logger      *zap.Logger
}

type Service struct {
	remote   procedures.Caller
	local    procedures.Caller
	repo     Repository
	audits   AuditReader
	cache    Cache
	recorder audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{
		remote:   opts.Remote,
		local:    procedures.NewLocal(procedures.NewRegistry(opts.Repo, opts.DefaultPlan, logger.Named("procedures"))),
		repo:     opts.Repo,
		audits:   opts.Audits,
		cache:    opts.Cache,
		recorder: rec,
		logger:   logger,
		now:      time.Now,
	}
}

// Caller returns the procedures client the gateway should use for
// check_platform_admin: remote with the same local fallback.
func (s *Service) Caller() procedures.Caller {
	return callerFunc(func(ctx context.Context, name string, args procedures.Args, out interface{}) error {
		return s.call(ctx, name, args, out, false)
	})
}

type callerFunc func(ctx context.Context, name string, args procedures.Args, out interface{}) error

func (f callerFunc) Call(ctx context.Context, name string, args procedures.Args, out interface{}) error {
	return f(ctx, name, args, out)
}

// call runs a procedure remotely and falls back to the local registry.
// Reads fall back on any remote failure. Mutations fall back only when the
// remote service was never reached; a rejected or timed-out mutation may
// already be applied and is returned as is.
func (s *Service) call(ctx context.Context, name string, args procedures.Args, out interface{}, mutation bool) error {
	if s.remote == nil {
		return s.local.Call(ctx, name, args, out)
	}
	err := s.remote.Call(ctx, name, args, out)
	if err == nil {
		return nil
	}
	if mutation && !errs.Is(err, errs.EUnavailable) && !errs.Is(err, errs.ENotConfigured) {
		return err
	}
	s.logger.Warn("Procedure call failed, querying directly",
		zap.String("procedure", name), zap.Error(err))
	return s.local.Call(ctx, name, args, out)
}

func (s *Service) record(action, actorID, entityID string, data map[string]interface{}) {
	s.recorder.Record(audit.Event{
		Service:  "admin",
		Action:   action,
		ActorID:  actorID,
		EntityID: entityID,
		Data:     data,
	})
}

func (s *Service) Stats(ctx context.Context) (repository.PlatformStats, error) {
	var stats repository.PlatformStats
	err := s.call(ctx, procedures.GetPlatformStats, nil, &stats, false)
	return stats, err
}

// Stores lists every store; query filters by name, slug or owner email.
func (s *Service) Stores(ctx context.Context, query string) ([]repository.StoreSummary, error) {
	var stores []repository.StoreSummary
	if err := s.call(ctx, procedures.GetAllStores, nil, &stores, false); err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return stores, nil
	}
	out := stores[:0]
	for _, st := range stores {
		if strings.Contains(strings.ToLower(st.Name), query) ||
			strings.Contains(st.Slug, query) ||
			strings.Contains(strings.ToLower(st.OwnerEmail), query) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Service) ToggleStore(ctx context.Context, actorID, storeID string) (*models.Store, error) {
	var store models.Store
	if err := s.call(ctx, procedures.ToggleStoreStatus, procedures.Args{"store_id": storeID}, &store, true); err != nil {
		return nil, err
	}
	s.record("store.toggle", actorID, storeID, map[string]interface{}{"active": store.Active})
	return &store, nil
}

func (s *Service) Users(ctx context.Context) ([]repository.UserSummary, error) {
	var users []repository.UserSummary
	err := s.call(ctx, procedures.GetAllUsers, nil, &users, false)
	return users, err
}

// CreateStoreForUser provisions a store for a user who has none. It
// returns the existing store with created=false otherwise.
func (s *Service) CreateStoreForUser(ctx context.Context, actorID, userID, name, plan string) (*procedures.ProvisionResult, error) {
	var res procedures.ProvisionResult
	args := procedures.Args{"user_id": userID, "name": name, "plan": plan}
	if err := s.call(ctx, procedures.CreateStoreForUser, args, &res, true); err != nil {
		return nil, err
	}
	if res.Created && res.Store != nil {
		s.record("store.provision", actorID, res.Store.ID, map[string]interface{}{"owner_user_id": userID, "plan": res.Store.Plan})
	}
	return &res, nil
}

func (s *Service) ToggleAdmin(ctx context.Context, actorID, userID string) (*procedures.AdminResult, error) {
	var res procedures.AdminResult
	args := procedures.Args{"user_id": userID, "actor_id": actorID}
	if err := s.call(ctx, procedures.ToggleAdminStatus, args, &res, true); err != nil {
		return nil, err
	}
	s.record("admin.toggle", actorID, userID, map[string]interface{}{"is_admin": res.IsAdmin})
	return &res, nil
}

// Plans lists the whole catalog, inactive plans included.
func (s *Service) Plans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := s.call(ctx, procedures.GetAllPlans, nil, &plans, false); err != nil {
		return nil, err
	}
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].PriceCents < plans[j].PriceCents })
	return plans, nil
}
