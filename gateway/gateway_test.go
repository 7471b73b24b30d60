package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/billing"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/identity"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/platform"
	"github.com/example/storefront/pkg/procedures"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_gateway"

// fakeIdentity is an in-memory identity provider issuing opaque tokens.
type fakeIdentity struct {
	mu      sync.Mutex
	users   map[string]identity.User // by email
	pass    map[string]string
	tokens  map[string]identity.User
	revoked map[string]bool
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		users:   map[string]identity.User{},
		pass:    map[string]string{},
		tokens:  map[string]identity.User{},
		revoked: map[string]bool{},
	}
}

func (f *fakeIdentity) register(email, password string) identity.User {
	u := identity.User{ID: uuid.NewString(), Email: email}
	f.users[email] = u
	f.pass[email] = password
	return u
}

func (f *fakeIdentity) issue(u identity.User) *identity.Session {
	token := "tok-" + uuid.NewString()
	f.tokens[token] = u
	return &identity.Session{AccessToken: token, TokenType: "bearer", ExpiresIn: 3600, User: u}
}

func (f *fakeIdentity) SignUp(_ context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[email]; exists {
		return nil, errs.Invalid("User already registered")
	}
	return f.issue(f.register(email, password)), nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, exists := f.users[email]
	if !exists || f.pass[email] != password {
		return nil, &errs.Error{Code: errs.EUnauthorized, Msg: "Invalid login credentials"}
	}
	return f.issue(u), nil
}

func (f *fakeIdentity) SignOut(context.Context, string) error { return nil }

func (f *fakeIdentity) Verify(_ context.Context, token string) (*identity.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, exists := f.tokens[token]
	if !exists || f.revoked[token] {
		return nil, &errs.Error{Code: errs.EUnauthorized, Msg: "invalid access token"}
	}
	return &identity.Claims{UserID: u.ID, Email: u.Email}, nil
}

func (f *fakeIdentity) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = true
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Action == action {
			return true
		}
	}
	return false
}

type harness struct {
	t     *testing.T
	gw    *Gateway
	repo  *repository.GormRepository
	ids   *fakeIdentity
	audit *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := repotest.New(t)
	mr := miniredis.RunT(t)
	cache := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ids := newFakeIdentity()
	rec := &recorder{}

	cfg := &config.Config{
		Platform: config.PlatformConfig{BootstrapAdmins: []string{"root@platform.test"}, DefaultPlan: "basic"},
		Stripe:   config.StripeConfig{WebhookSecret: webhookSecret, AppBaseURL: "https://shop.test"},
	}
	admin := platform.NewService(platform.Options{Repo: repo, Cache: cache, Recorder: rec, Logger: logger})
	gw := NewGateway(Options{
		Config:   cfg,
		Logger:   logger,
		Repo:     repo,
		Accounts: ids,
		Tokens:   ids,
		Resolver: tenancy.NewResolver(procedures.AdminCheck{Caller: admin.Caller()}, repo, logger),
		Admin:    admin,
		Billing:  billing.NewService(&cfg.Stripe, nil, repo, cache, rec, logger),
		Recorder: rec,
	})
	return &harness{t: t, gw: gw, repo: repo, ids: ids, audit: rec}
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Meta     map[string]int  `json:"meta"`
	Redirect string          `json:"redirect"`
	State    string          `json:"state"`
	Message  string          `json:"message"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *harness) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func (h *harness) data(env envelope, out interface{}) {
	h.t.Helper()
	require.NotEmpty(h.t, env.Data, "response has no data")
	require.NoError(h.t, json.Unmarshal(env.Data, out))
}

// signUp registers a user through the API and returns its token and store.
func (h *harness) signUp(email string) (string, *models.Store) {
	h.t.Helper()
	rec, env := h.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": "secret-pass"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Session identity.Session `json:"session"`
		Store   models.Store     `json:"store"`
	}
	h.data(env, &body)
	return body.Session.AccessToken, &body.Store
}

// signIn returns the token of an existing account.
func (h *harness) signIn(email string) string {
	h.t.Helper()
	rec, env := h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": email, "password": "secret-pass"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Session identity.Session `json:"session"`
	}
	h.data(env, &body)
	return body.Session.AccessToken
}

// adminToken signs in the bootstrap admin.
func (h *harness) adminToken() string {
	h.t.Helper()
	h.ids.mu.Lock()
	h.ids.register("root@platform.test", "secret-pass")
	h.ids.mu.Unlock()
	return h.signIn("root@platform.test")
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignUpProvisionsStore(t *testing.T) {
	h := newHarness(t)
	token, store := h.signUp("owner@shop.test")
	require.NotEmpty(t, token)
	assert.True(t, store.Active)
	assert.Equal(t, "basic", store.Plan)
	assert.Equal(t, "Store "+store.Slug, store.Name)

	var members []models.StoreMember
	require.NoError(t, h.repo.DB().Where("store_id = ?", store.ID).Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, models.RoleOwner, members[0].Role)

	rec, env := h.do(http.MethodGet, "/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var overview tenancy.Overview
	h.data(env, &overview)
	assert.Equal(t, store.Name, overview.Store.Name)
	assert.Empty(t, overview.RecentOrders)
	assert.Zero(t, overview.Products)

	for _, path := range []string{"/dashboard/products", "/dashboard/orders"} {
		rec, env = h.do(http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, string(env.Data))
		assert.Equal(t, 0, env.Meta["total"])
	}
	assert.True(t, h.audit.has("store.provision"))

	rec, env = h.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": "owner@shop.test", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "User already registered", env.Error.Message)
}

func TestSignInAndSignOut(t *testing.T) {
	h := newHarness(t)
	h.signUp("owner@shop.test")

	rec, env := h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "owner@shop.test", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)

	rec, env = h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "Owner@Shop.test", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Session  identity.Session `json:"session"`
		Role     string           `json:"role"`
		Redirect string           `json:"redirect"`
	}
	h.data(env, &body)
	assert.Equal(t, "store_owner", body.Role)
	assert.Equal(t, "/dashboard", body.Redirect)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), AccessTokenCookie+"=")

	user, err := h.repo.FindUserByID(context.Background(), body.Session.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, user.LastSignInAt)

	rec, _ = h.do(http.MethodGet, "/auth/me", body.Session.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPost, "/auth/signout", body.Session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/dashboard", body.Session.AccessToken, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, tenancy.SignInPath, env.Redirect)

	rec, _ = h.do(http.MethodGet, "/auth/me", body.Session.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieAuthentication(t *testing.T) {
	h := newHarness(t)
	token, _ := h.signUp("owner@shop.test")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardRedirects(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.signUp("owner@shop.test")
	admin := h.adminToken()

	cases := []struct {
		name, path, token, location string
	}{
		{"anonymous dashboard", "/dashboard", "", tenancy.SignInPath},
		{"anonymous admin", "/admin", "", tenancy.SignInPath},
		{"admin on tenant page", "/dashboard", admin, tenancy.AdminPath},
		{"admin on tenant data", "/dashboard/products", admin, tenancy.AdminPath},
		{"owner on admin page", "/admin/stores", owner, tenancy.DashboardPath},
		{"bogus token", "/dashboard", "not-a-token", tenancy.SignInPath},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := h.do(http.MethodGet, tc.path, tc.token, nil)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tc.location, rec.Header().Get("Location"))
			assert.Equal(t, tc.location, env.Redirect)
		})
	}

	rec, _ := h.do(http.MethodGet, "/admin", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignInRedirectsAdmins(t *testing.T) {
	h := newHarness(t)
	h.ids.mu.Lock()
	h.ids.register("root@platform.test", "secret-pass")
	h.ids.mu.Unlock()

	rec, env := h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "root@platform.test", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Role     string `json:"role"`
		Redirect string `json:"redirect"`
	}
	h.data(env, &body)
	assert.Equal(t, "platform_admin", body.Role)
	assert.Equal(t, tenancy.AdminPath, body.Redirect)
}

func TestNoStoreIssuesNoTenantQueries(t *testing.T) {
	h := newHarness(t)
	h.ids.mu.Lock()
	h.ids.register("nostore@shop.test", "secret-pass")
	h.ids.mu.Unlock()
	token := h.signIn("nostore@shop.test")

	var tenantQueries int64
	count := func(db *gorm.DB) {
		switch db.Statement.Table {
		case "products", "orders", "order_items":
			atomic.AddInt64(&tenantQueries, 1)
		}
	}
	cb := h.repo.DB().Callback()
	require.NoError(t, cb.Query().After("gorm:query").Register("test:count_query", count))
	require.NoError(t, cb.Row().After("gorm:row").Register("test:count_row", count))

	for _, path := range []string{"/dashboard", "/dashboard/products", "/dashboard/orders", "/dashboard/analytics"} {
		rec, env := h.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, tenancy.StateNoStore, env.State, path)
	}
	rec, env := h.do(http.MethodPost, "/dashboard/products", token, map[string]interface{}{"title": "Mug", "price_cents": 100})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenancy.StateNoStore, env.State)

	assert.Zero(t, atomic.LoadInt64(&tenantQueries))
}

func TestStoreDeactivationRendersPending(t *testing.T) {
	h := newHarness(t)
	owner, store := h.signUp("owner@shop.test")
	admin := h.adminToken()

	rec, env := h.do(http.MethodPost, "/admin/stores/"+store.ID+"/toggle", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var toggled models.Store
	h.data(env, &toggled)
	assert.False(t, toggled.Active)
	assert.True(t, h.audit.has("store.toggle"))

	rec, env = h.do(http.MethodGet, "/dashboard", owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenancy.StatePending, env.State)
	assert.Empty(t, env.Data)

	rec, env = h.do(http.MethodPost, "/dashboard/products", owner, map[string]interface{}{"title": "Mug", "price_cents": 100})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "store pending review", env.Error.Message)
}

func TestPlanCreationShowsOnPricing(t *testing.T) {
	h := newHarness(t)
	admin := h.adminToken()

	rec, _ := h.do(http.MethodGet, "/pricing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodPost, "/admin/plans", admin, map[string]interface{}{
		"id": "growth", "name": "Growth", "price_cents": 7900, "features": []string{"Custom domain", " "},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, h.audit.has("plan.create"))

	rec, env = h.do(http.MethodGet, "/pricing", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []platform.PricedPlan
	h.data(env, &plans)
	var growth *platform.PricedPlan
	for i := range plans {
		if plans[i].ID == "growth" {
			growth = &plans[i]
		}
	}
	require.NotNil(t, growth, "new plan is listed")
	assert.Equal(t, "79.00", growth.Price.Formatted)
	assert.Equal(t, []string{"Custom domain"}, growth.Features)

	rec, _ = h.do(http.MethodPost, "/admin/plans", admin, map[string]interface{}{"id": "growth", "name": "Again", "price_cents": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = h.do(http.MethodDelete, "/admin/plans/growth", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(http.MethodPut, "/admin/plans/growth", admin, map[string]interface{}{"name": "Growth", "price_cents": 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantIsolation(t *testing.T) {
	h := newHarness(t)
	ownerA, storeA := h.signUp("a@shop.test")
	ownerB, _ := h.signUp("b@shop.test")

	rec, env := h.do(http.MethodPost, "/dashboard/products", ownerA, map[string]interface{}{"title": "Mug", "price_cents": 1250})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product productView
	h.data(env, &product)
	assert.Equal(t, storeA.ID, product.StoreID)
	assert.Equal(t, "12.50", product.Price.Formatted)

	rec, env = h.do(http.MethodPost, "/dashboard/orders", ownerA, map[string]interface{}{
		"customer_email": "c@x.test",
		"items":          []map[string]interface{}{{"product_id": product.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order tenancy.OrderRow
	h.data(env, &order)
	assert.Equal(t, "25.00", order.Total.Formatted)

	rec, env = h.do(http.MethodGet, "/dashboard/products", ownerB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, _ = h.do(http.MethodPut, "/dashboard/products/"+product.ID, ownerB, map[string]interface{}{"title": "Stolen", "price_cents": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = h.do(http.MethodDelete, "/dashboard/products/"+product.ID, ownerB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = h.do(http.MethodGet, "/dashboard/orders/"+order.ID, ownerB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = h.do(http.MethodPost, "/dashboard/orders/"+order.ID+"/advance", ownerB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = h.do(http.MethodPost, "/dashboard/orders", ownerB, map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": product.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/dashboard/orders", ownerA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []tenancy.OrderRow
	h.data(env, &rows)
	require.Len(t, rows, 1)
	for _, r := range rows {
		assert.Equal(t, storeA.ID, r.StoreID)
	}
}

func TestOrderTransitionsOverHTTP(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.signUp("owner@shop.test")

	_, env := h.do(http.MethodPost, "/dashboard/products", owner, map[string]interface{}{"title": "Mug", "price_cents": 500})
	var product productView
	h.data(env, &product)
	_, env = h.do(http.MethodPost, "/dashboard/orders", owner, map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": product.ID, "quantity": 1}},
	})
	var order tenancy.OrderRow
	h.data(env, &order)
	assert.Equal(t, models.StatusNew, order.Status)

	for _, want := range []models.OrderStatus{models.StatusProcessing, models.StatusShipped, models.StatusCompleted} {
		rec, env := h.do(http.MethodPost, "/dashboard/orders/"+order.ID+"/advance", owner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got tenancy.OrderRow
		h.data(env, &got)
		assert.Equal(t, want, got.Status)
	}

	rec, env := h.do(http.MethodPost, "/dashboard/orders/"+order.ID+"/cancel", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid", env.Error.Code)

	rec, env = h.do(http.MethodGet, "/dashboard/analytics", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a tenancy.Analytics
	h.data(env, &a)
	assert.Equal(t, "5.00", a.Revenue.Formatted)
	assert.Equal(t, int64(1), a.CompletedOrders)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	owner, store := h.signUp("owner@shop.test")

	rec, _ := h.do(http.MethodPut, "/dashboard/settings", owner, map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := h.do(http.MethodPut, "/dashboard/settings", owner, map[string]string{"name": "Corner Shop", "description": "Mugs"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Store
	h.data(env, &updated)
	assert.Equal(t, store.ID, updated.ID)
	assert.Equal(t, "Corner Shop", updated.Name)

	_, env = h.do(http.MethodGet, "/dashboard/settings", owner, nil)
	var got models.Store
	h.data(env, &got)
	assert.Equal(t, "Mugs", got.Description)
}

func TestAdminUsersAndStores(t *testing.T) {
	h := newHarness(t)
	h.signUp("owner@shop.test")
	admin := h.adminToken()

	h.ids.mu.Lock()
	bare := h.ids.register("bare@shop.test", "secret-pass")
	h.ids.mu.Unlock()
	h.signIn("bare@shop.test")

	rec, env := h.do(http.MethodPost, "/admin/users/"+bare.ID+"/store", admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, _ = h.do(http.MethodPost, "/admin/users/"+bare.ID+"/store", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/admin/stores?q=owner@shop", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stores []repository.StoreSummary
	h.data(env, &stores)
	require.Len(t, stores, 1)
	assert.Equal(t, "owner@shop.test", stores[0].OwnerEmail)

	rec, env = h.do(http.MethodGet, "/admin/users?perPage=2", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, env.Meta["total"])
	assert.Equal(t, 2, env.Meta["per_page"])

	rec, env = h.do(http.MethodPost, "/admin/users/"+bare.ID+"/admin", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		IsAdmin bool `json:"is_admin"`
	}
	h.data(env, &res)
	assert.True(t, res.IsAdmin)

	adminUser, err := h.repo.ListUserSummaries(context.Background())
	require.NoError(t, err)
	var rootID string
	for _, u := range adminUser {
		if u.Email == "root@platform.test" {
			rootID = u.ID
		}
	}
	rec, _ = h.do(http.MethodPost, "/admin/users/"+rootID+"/admin", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = h.do(http.MethodGet, "/admin/reports", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep platform.Reports
	h.data(env, &rep)
	assert.Equal(t, int64(2), rep.Stats.TotalStores)
	assert.Equal(t, int64(2), rep.Growth.CurrentMonth)
}

func TestStorefront(t *testing.T) {
	h := newHarness(t)
	owner, store := h.signUp("owner@shop.test")
	h.do(http.MethodPost, "/dashboard/products", owner, map[string]interface{}{"title": "Mug", "price_cents": 500})
	h.do(http.MethodPost, "/dashboard/products", owner, map[string]interface{}{"title": "Hidden", "price_cents": 500, "active": false})

	req := httptest.NewRequest(http.MethodGet, "/storefront", nil)
	req.Host = store.Slug + ".shops.test:8080"
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var body struct {
		Products []productView `json:"products"`
	}
	h.data(env, &body)
	require.Len(t, body.Products, 1)
	assert.Equal(t, "Mug", body.Products[0].Title)

	req = httptest.NewRequest(http.MethodGet, "/storefront", nil)
	req.Header.Set(StoreHeader, "missing")
	rec = httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := h.repo.ToggleStoreActive(context.Background(), store.ID)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/storefront", nil)
	req.Header.Set(StoreHeader, store.Slug)
	rec = httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (h *harness) webhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27",` +
		`"data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","metadata":{"userId":"u-paid","plan":"pro"}}}}`)

	rec := h.webhook(payload, "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(fmt.Sprint(body["error"]), "Webhook Error: "))
	stores, err := h.repo.ListStoreSummaries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
	for i := 0; i < 2; i++ {
		rec = h.webhook(signed.Payload, signed.Header)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	}
	stores, err = h.repo.ListStoreSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "pro", stores[0].Plan)
}

func TestCheckoutEndpoint(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stripe/checkout", strings.NewReader(`{"plan":"pro"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Plan and email are required"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stripe/checkout", strings.NewReader(`{"plan":"pro","email":"a@x.test"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"stripe not configured"}`, rec.Body.String())
}

func TestStorefrontUnderRootDomain(t *testing.T) {
	h := newHarness(t)
	h.gw.config.Gateway.RootDomain = "shops.co.uk"
	owner, store := h.signUp("owner@shop.test")
	h.do(http.MethodPost, "/dashboard/products", owner, map[string]interface{}{"title": "Mug", "price_cents": 500})

	get := func(host string) int {
		req := httptest.NewRequest(http.MethodGet, "/storefront", nil)
		req.Host = host
		rec := httptest.NewRecorder()
		h.gw.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, get(store.Slug+".shops.co.uk"))
	assert.Equal(t, http.StatusNotFound, get("shops.co.uk"))
	assert.Equal(t, http.StatusNotFound, get(store.Slug+".elsewhere.com"))
}
