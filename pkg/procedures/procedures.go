// Package procedures implements the platform's named procedures: the small
// set of admin operations the gateway invokes by name, either in-process or
// over gRPC.
package procedures

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	CheckPlatformAdmin = "check_platform_admin"
	GetPlatformStats   = "get_platform_stats"
	GetAllStores       = "get_all_stores"
	GetAllUsers        = "get_all_users"
	GetAllPlans        = "get_all_plans"
	ToggleStoreStatus  = "toggle_store_status"
	CreateStoreForUser = "create_store_for_user"
	ToggleAdminStatus  = "toggle_admin_status"
)

// Args are the named arguments of a call.
type Args map[string]interface{}

func (a Args) String(key string) string {
	return cast.ToString(a[key])
}

func (a Args) Required(key string) (string, error) {
	v := a.String(key)
	if v == "" {
		return "", errs.Invalid(key + " is required")
	}
	return v, nil
}

// Caller invokes a procedure by name and decodes its result into out.
type Caller interface {
	Call(ctx context.Context, name string, args Args, out interface{}) error
}

// Handler runs one procedure.
type Handler func(ctx context.Context, args Args) (interface{}, error)

// Backend is the data the procedures operate on.
type Backend interface {
	IsPlatformAdmin(ctx context.Context, userID string) (bool, error)
	PlatformStats(ctx context.Context) (repository.PlatformStats, error)
	ListStoreSummaries(ctx context.Context) ([]repository.StoreSummary, error)
	ListUserSummaries(ctx context.Context) ([]repository.UserSummary, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	ToggleStoreActive(ctx context.Context, storeID string) (*models.Store, error)
	ProvisionStore(ctx context.Context, req repository.ProvisionRequest) (*models.Store, bool, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	ToggleAdmin(ctx context.Context, userID string) (bool, error)
}

// Registry maps procedure names to handlers.
type Registry struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

// ProvisionResult is returned by create_store_for_user.
type ProvisionResult struct {
	Store   *models.Store `json:"store"`
	Created bool          `json:"created"`
}

// AdminResult is returned by toggle_admin_status.
type AdminResult struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

func NewRegistry(backend Backend, defaultPlan string, logger *zap.Logger) *Registry {
	if defaultPlan == "" {
		defaultPlan = "basic"
	}
	r := &Registry{handlers: map[string]Handler{}, logger: logger}

	r.Register(CheckPlatformAdmin, func(ctx context.Context, args Args) (interface{}, error) {
		userID, err := args.Required("user_id")
		if err != nil {
			return nil, err
		}
		return backend.IsPlatformAdmin(ctx, userID)
	})
	r.Register(GetPlatformStats, func(ctx context.Context, _ Args) (interface{}, error) {
		return backend.PlatformStats(ctx)
	})
	r.Register(GetAllStores, func(ctx context.Context, _ Args) (interface{}, error) {
		return backend.ListStoreSummaries(ctx)
	})
	r.Register(GetAllUsers, func(ctx context.Context, _ Args) (interface{}, error) {
		return backend.ListUserSummaries(ctx)
	})
	r.Register(GetAllPlans, func(ctx context.Context, _ Args) (interface{}, error) {
		return backend.ListPlans(ctx, false)
	})
	r.Register(ToggleStoreStatus, func(ctx context.Context, args Args) (interface{}, error) {
		storeID, err := args.Required("store_id")
		if err != nil {
			return nil, err
		}
		return backend.ToggleStoreActive(ctx, storeID)
	})
	r.Register(CreateStoreForUser, func(ctx context.Context, args Args) (interface{}, error) {
		userID, err := args.Required("user_id")
		if err != nil {
			return nil, err
		}
		if _, err := backend.FindUserByID(ctx, userID); err != nil {
			return nil, err
		}
		name := args.String("name")
		slug := tenancy.GenerateSlug(name)
		if name == "" {
			name = "Store " + slug
		}
		plan := args.String("plan")
		if plan == "" {
			plan = defaultPlan
		}
		store, created, err := backend.ProvisionStore(ctx, repository.ProvisionRequest{
			OwnerUserID: userID,
			Name:        name,
			Slug:        slug,
			Plan:        plan,
		})
		if err != nil {
			return nil, err
		}
		return ProvisionResult{Store: store, Created: created}, nil
	})
	r.Register(ToggleAdminStatus, func(ctx context.Context, args Args) (interface{}, error) {
		userID, err := args.Required("user_id")
		if err != nil {
			return nil, err
		}
		if userID == args.String("actor_id") {
			return nil, errs.Forbidden("admins cannot change their own admin status")
		}
		admin, err := backend.ToggleAdmin(ctx, userID)
		if err != nil {
			return nil, err
		}
		return AdminResult{UserID: userID, IsAdmin: admin}, nil
	})
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Names lists the registered procedures in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a procedure and returns its raw result.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (interface{}, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, errs.NotFound("unknown procedure " + name)
	}
	if args == nil {
		args = Args{}
	}
	result, err := h(ctx, args)
	if err != nil {
		r.logger.Debug("Procedure failed", zap.String("procedure", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Local calls the registry in-process.
type Local struct {
	registry *Registry
}

func NewLocal(registry *Registry) *Local {
	return &Local{registry: registry}
}

func (l *Local) Call(ctx context.Context, name string, args Args, out interface{}) error {
	result, err := l.registry.Invoke(ctx, name, args)
	if err != nil {
		return err
	}
	return Decode(result, out)
}

// Decode copies a procedure result into out through its JSON form, so a
// local call decodes exactly like a remote one.
func Decode(result interface{}, out interface{}) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return &errs.Error{Code: errs.EInternal, Op: "procedures.Decode", Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &errs.Error{Code: errs.EInternal, Op: "procedures.Decode", Err: err}
	}
	return nil
}

// AdminCheck asks check_platform_admin through a Caller.
type AdminCheck struct {
	Caller Caller
}

func (a AdminCheck) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := a.Caller.Call(ctx, CheckPlatformAdmin, Args{"user_id": userID}, &ok)
	return ok, err
}

var _ Backend = (*repository.GormRepository)(nil)
