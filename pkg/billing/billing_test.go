package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_test"

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fakeSessions struct {
	got SessionParams
}

func (f *fakeSessions) CreateCheckoutSession(_ context.Context, p SessionParams) (string, error) {
	f.got = p
	return "https://checkout.stripe.test/c/cs_1", nil
}

func newService(t *testing.T, sessions SessionCreator) (*Service, *repository.GormRepository, *recorder) {
	t.Helper()
	repo := repotest.New(t)
	mr := miniredis.RunT(t)
	events := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	rec := &recorder{}
	cfg := &config.StripeConfig{
		SecretKey:     "sk_test_1",
		WebhookSecret: testSecret,
		Prices:        map[string]string{"basic": "price_basic", "pro": "price_pro"},
		AppBaseURL:    "https://shop.test",
	}
	return NewService(cfg, sessions, repo, events, rec, zaptest.NewLogger(t)), repo, rec
}

func signed(t *testing.T, id, typ string, object interface{}) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2020-08-27","data":{"object":%s}}`, id, typ, raw))
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return sp.Payload, sp.Header
}

func checkoutCompleted(userID, plan string) map[string]interface{} {
	return map[string]interface{}{
		"id":       "cs_1",
		"object":   "checkout.session",
		"customer": "cus_1",
		"metadata": map[string]string{"userId": userID, "plan": plan},
	}
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	sessions := &fakeSessions{}
	svc, _, _ := newService(t, sessions)

	_, err := svc.Checkout(ctx, CheckoutRequest{Plan: "pro"})
	assert.True(t, errs.Is(err, errs.EInvalid))
	assert.Equal(t, "Plan and email are required", errs.Message(err))

	url, err := svc.Checkout(ctx, CheckoutRequest{Plan: "pro", Email: "a@x.test", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/c/cs_1", url)
	assert.Equal(t, "price_pro", sessions.got.PriceID)
	assert.Equal(t, "https://shop.test/dashboard?success=true", sessions.got.SuccessURL)
	assert.Equal(t, "https://shop.test/pricing?canceled=true", sessions.got.CancelURL)
	assert.Equal(t, map[string]string{"userId": "u1", "plan": "pro"}, sessions.got.Metadata)

	_, err = svc.Checkout(ctx, CheckoutRequest{Plan: "enterprise", Email: "a@x.test"})
	assert.True(t, errs.Is(err, errs.EInvalid))
}

func TestCheckoutPrefersCatalogPrice(t *testing.T) {
	ctx := context.Background()
	sessions := &fakeSessions{}
	svc, repo, _ := newService(t, sessions)

	plan, err := repo.GetPlan(ctx, "basic")
	require.NoError(t, err)
	plan.StripePriceID = "price_from_catalog"
	require.NoError(t, repo.UpdatePlan(ctx, plan))

	_, err = svc.Checkout(ctx, CheckoutRequest{Plan: "basic", Email: "a@x.test"})
	require.NoError(t, err)
	assert.Equal(t, "price_from_catalog", sessions.got.PriceID)
}

func TestCheckoutNotConfigured(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{Plan: "pro", Email: "a@x.test"})
	assert.True(t, errs.Is(err, errs.ENotConfigured))

	sessions := NewStripeSessions("", nil)
	_, err = sessions.CreateCheckoutSession(context.Background(), SessionParams{})
	assert.True(t, errs.Is(err, errs.ENotConfigured))
}

func TestStripeSessions(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.test/c/cs_1"}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	sessions := NewStripeSessions("sk_test_1", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	url, err := sessions.CreateCheckoutSession(context.Background(), SessionParams{
		PriceID:    "price_pro",
		Email:      "a@x.test",
		SuccessURL: "https://shop.test/dashboard?success=true",
		CancelURL:  "https://shop.test/pricing?canceled=true",
		Metadata:   map[string]string{"userId": "u1", "plan": "pro"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/c/cs_1", url)
	require.NotNil(t, form)
	assert.Equal(t, "subscription", form["mode"][0])
	assert.Equal(t, "a@x.test", form["customer_email"][0])
	assert.Equal(t, "price_pro", form["line_items[0][price]"][0])
	assert.Equal(t, "u1", form["metadata[userId]"][0])
	assert.Equal(t, "true", form["allow_promotion_codes"][0])
}

func TestWebhookInvalidSignature(t *testing.T) {
	ctx := context.Background()
	svc, repo, rec := newService(t, nil)

	payload, _ := signed(t, "evt_1", "checkout.session.completed", checkoutCompleted("u1", "pro"))
	err := svc.HandleWebhook(ctx, payload, "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EInvalid))
	assert.Contains(t, errs.Message(err), "Webhook Error: ")

	_, err = repo.FindStoreByOwner(ctx, "u1")
	assert.True(t, errs.Is(err, errs.ENotFound))
	assert.Empty(t, rec.events)
}

func TestWebhookCheckoutCompletedProvisionsOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo, rec := newService(t, nil)

	payload, header := signed(t, "evt_1", "checkout.session.completed", checkoutCompleted("u1", "pro"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	store, err := repo.FindStoreByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "pro", store.Plan)
	assert.True(t, store.Active)
	assert.Regexp(t, `^store-[a-z0-9]{4}$`, store.Slug)
	assert.Equal(t, "Store "+store.Slug, store.Name)
	require.NotNil(t, store.StripeCustomerID)
	assert.Equal(t, "cus_1", *store.StripeCustomerID)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "store.provision", rec.events[0].Action)

	// redelivery of the same event
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	// a distinct event for the same user
	payload, header = signed(t, "evt_2", "checkout.session.completed", checkoutCompleted("u1", "basic"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	stores, err := repo.ListStoreSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "basic", stores[0].Plan, "a later checkout moves the existing store to its plan")
	require.Len(t, rec.events, 2)
	assert.Equal(t, "store.subscribe", rec.events[1].Action)
}

func TestWebhookCheckoutUpgradesSignUpStore(t *testing.T) {
	ctx := context.Background()
	svc, repo, rec := newService(t, nil)

	free, created, err := repo.ProvisionStore(ctx, repository.ProvisionRequest{
		OwnerUserID: "u1", Name: "Corner Shop", Slug: "corner", Plan: "basic",
	})
	require.NoError(t, err)
	require.True(t, created)

	session := checkoutCompleted("u1", "pro")
	session["subscription"] = "sub_1"
	payload, header := signed(t, "evt_1", "checkout.session.completed", session)
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	store, err := repo.FindStoreByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, free.ID, store.ID)
	assert.Equal(t, "Corner Shop", store.Name)
	assert.Equal(t, "pro", store.Plan)
	require.NotNil(t, store.StripeCustomerID)
	assert.Equal(t, "cus_1", *store.StripeCustomerID)
	require.NotNil(t, store.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *store.StripeSubscriptionID)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "store.subscribe", rec.events[0].Action)

	sub := map[string]interface{}{"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "active"}
	payload, header = signed(t, "evt_2", "customer.subscription.created", sub)
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	sub["status"] = "canceled"
	payload, header = signed(t, "evt_3", "customer.subscription.deleted", sub)
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	store, err = repo.FindStoreByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, store.Active, "cancelling the subscription deactivates the upgraded store")
}

func TestWebhookWithUnreachableEventLog(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	events := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	}))
	cfg := &config.StripeConfig{WebhookSecret: testSecret}
	svc := NewService(cfg, nil, repo, events, nil, zaptest.NewLogger(t))

	payload, header := signed(t, "evt_1", "checkout.session.completed", checkoutCompleted("u1", "pro"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	stores, err := repo.ListStoreSummaries(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestWebhookCheckoutWithoutUserIsIgnored(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t, nil)

	payload, header := signed(t, "evt_1", "checkout.session.completed", checkoutCompleted("", ""))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))

	stores, err := repo.ListStoreSummaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t, nil)

	_, _, err := repo.ProvisionStore(ctx, repository.ProvisionRequest{
		OwnerUserID: "u1", Name: "Shop", Slug: "shop", Plan: "pro", StripeCustomerID: "cus_1",
	})
	require.NoError(t, err)

	sub := func(status string) map[string]interface{} {
		return map[string]interface{}{"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": status}
	}
	storeActive := func() bool {
		s, err := repo.FindStoreByOwner(ctx, "u1")
		require.NoError(t, err)
		return s.Active
	}

	payload, header := signed(t, "evt_1", "customer.subscription.updated", sub("past_due"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	assert.False(t, storeActive())

	payload, header = signed(t, "evt_2", "customer.subscription.created", sub("active"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	assert.True(t, storeActive())
	s, err := repo.FindStoreByOwner(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, s.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *s.StripeSubscriptionID)

	payload, header = signed(t, "evt_3", "customer.subscription.deleted", sub("canceled"))
	require.NoError(t, svc.HandleWebhook(ctx, payload, header))
	assert.False(t, storeActive())

	payload, header = signed(t, "evt_4", "invoice.paid", map[string]interface{}{"id": "in_1", "object": "invoice"})
	assert.NoError(t, svc.HandleWebhook(ctx, payload, header))
}

func TestWebhookFailureReleasesEvent(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t, nil)

	payload, header := signed(t, "evt_1", "checkout.session.completed", checkoutCompleted("u1", "pro"))
	require.NoError(t, repo.Close())

	err := svc.HandleWebhook(ctx, payload, header)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.EInternal))
	assert.Equal(t, "Error processing webhook", errs.Message(err))

	claimed, err := svc.events.ClaimEvent(ctx, "evt_1", eventTTL)
	require.NoError(t, err)
	assert.True(t, claimed, "failed deliveries stay retryable")
}

var _ Stores = (*repository.GormRepository)(nil)
