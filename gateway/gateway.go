// Package gateway is the HTTP edge of the storefront: authentication, the
// guarded store dashboard, the platform admin area, public pricing and
// storefront pages, and the Stripe endpoints.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/billing"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/identity"
	"github.com/example/storefront/pkg/platform"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Accounts is the identity provider's account API.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Tokens verifies and revokes access tokens.
type Tokens interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
	Revoke(ctx context.Context, token string) error
}

type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Repo     *repository.GormRepository
	Accounts Accounts
	Tokens   Tokens
	Resolver *tenancy.Resolver
	Admin    *platform.Service
	Billing  *billing.Service
	Recorder audit.Recorder
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	repo     *repository.GormRepository
	accounts Accounts
	tokens   Tokens
	resolver *tenancy.Resolver
	admin    *platform.Service
	billing  *billing.Service
	audit    audit.Recorder

	bootstrapAdmins map[string]bool
}

func NewGateway(opts Options) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(opts.Logger))

	rec := opts.Recorder
	if rec == nil {
		rec = audit.Nop{}
	}
	admins := make(map[string]bool, len(opts.Config.Platform.BootstrapAdmins))
	for _, email := range opts.Config.Platform.BootstrapAdmins {
		if email != "" {
			admins[email] = true
		}
	}

	g := &Gateway{
		config:          opts.Config,
		logger:          opts.Logger,
		router:          router,
		repo:            opts.Repo,
		accounts:        opts.Accounts,
		tokens:          opts.Tokens,
		resolver:        opts.Resolver,
		admin:           opts.Admin,
		billing:         opts.Billing,
		audit:           rec,
		bootstrapAdmins: admins,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	r := g.router
	r.GET("/health", g.health)

	auth := r.Group("/auth")
	{
		auth.POST("/signup", g.signUp)
		auth.POST("/signin", g.signIn)
		auth.POST("/signout", g.signOut)
		auth.GET("/me", g.me)
	}

	dash := r.Group(tenancy.DashboardPath, g.guard(tenancy.AreaTenant))
	{
		dash.GET("", g.dashboard)
		dash.GET("/analytics", g.analytics)
		dash.GET("/settings", g.getSettings)
		dash.PUT("/settings", g.updateSettings)

		dash.GET("/products", g.listProducts)
		dash.POST("/products", g.createProduct)
		dash.PUT("/products/:id", g.updateProduct)
		dash.DELETE("/products/:id", g.deleteProduct)
		dash.POST("/products/:id/toggle", g.toggleProduct)

		dash.GET("/orders", g.listOrders)
		dash.POST("/orders", g.createOrder)
		dash.GET("/orders/:id", g.getOrder)
		dash.POST("/orders/:id/advance", g.advanceOrder)
		dash.POST("/orders/:id/cancel", g.cancelOrder)
	}

	admin := r.Group(tenancy.AdminPath, g.guard(tenancy.AreaAdmin))
	{
		admin.GET("", g.adminStats)
		admin.GET("/stores", g.adminStores)
		admin.POST("/stores/:id/toggle", g.adminToggleStore)
		admin.GET("/users", g.adminUsers)
		admin.POST("/users/:id/store", g.adminCreateStore)
		admin.POST("/users/:id/admin", g.adminToggleAdmin)
		admin.GET("/reports", g.adminReports)
		admin.GET("/plans", g.adminPlans)
		admin.POST("/plans", g.adminCreatePlan)
		admin.PUT("/plans/:id", g.adminUpdatePlan)
		admin.DELETE("/plans/:id", g.adminDeletePlan)
	}

	r.GET(tenancy.PricingPath, g.pricing)
	r.GET("/storefront", g.storefront)

	api := r.Group("/api")
	{
		api.POST("/stripe/checkout", g.checkout)
		api.POST("/webhooks/stripe", g.stripeWebhook)
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves HTTP until Shutdown is called.
func (g *Gateway) Start() error {
	addr := g.config.Gateway.Addr()
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) health(c *gin.Context) {
	if err := g.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if res, ok := c.Get(resolutionKey); ok {
			r := res.(tenancy.Resolution)
			fields = append(fields, zap.String("role", r.Kind.String()))
			if r.Store != nil {
				fields = append(fields, zap.String("store_id", r.Store.ID))
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("HTTP request", fields...)
	}
}
