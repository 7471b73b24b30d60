package billing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const eventTTL = 72 * time.Hour

// Stores is the store data touched by billing.
type Stores interface {
	FindStoreByOwner(ctx context.Context, userID string) (*models.Store, error)
	ProvisionStore(ctx context.Context, req repository.ProvisionRequest) (*models.Store, bool, error)
	AttachBilling(ctx context.Context, ownerID, customerID, subscriptionID, plan string) (*models.Store, error)
	SyncSubscription(ctx context.Context, customerID, subscriptionID string, active bool) (int64, error)
	DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
}

// EventLog de-duplicates webhook deliveries by event id.
type EventLog interface {
	ClaimEvent(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, id string) error
}

type Service struct {
	cfg      *config.StripeConfig
	sessions SessionCreator
	stores   Stores
	events   EventLog
	audit    audit.Recorder
	logger   *zap.Logger
}

func NewService(cfg *config.StripeConfig, sessions SessionCreator, stores Stores, events EventLog, rec audit.Recorder, logger *zap.Logger) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{cfg: cfg, sessions: sessions, stores: stores, events: events, audit: rec, logger: logger}
}

// Checkout opens a subscription checkout for a plan and returns its URL.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	req.Plan = strings.TrimSpace(req.Plan)
	req.Email = strings.TrimSpace(req.Email)
	if req.Plan == "" || req.Email == "" {
		return "", errs.Invalid("Plan and email are required")
	}
	if s.sessions == nil {
		return "", errs.NotConfigured("stripe")
	}

	priceID := s.cfg.PriceID(req.Plan)
	if plan, err := s.stores.GetPlan(ctx, req.Plan); err == nil && plan.StripePriceID != "" {
		priceID = plan.StripePriceID
	} else if err != nil && !errs.Is(err, errs.ENotFound) {
		s.logger.Warn("Plan lookup failed, using configured price", zap.String("plan", req.Plan), zap.Error(err))
	}
	if priceID == "" {
		return "", errs.Invalid("no price configured for plan " + req.Plan)
	}

	base := s.cfg.AppBaseURL
	return s.sessions.CreateCheckoutSession(ctx, SessionParams{
		PriceID:    priceID,
		Email:      req.Email,
		SuccessURL: base + "/dashboard?success=true",
		CancelURL:  base + "/pricing?canceled=true",
		Metadata:   map[string]string{"userId": req.UserID, "plan": req.Plan},
	})
}

// HandleWebhook verifies and applies one webhook delivery. Signature
// failures return EInvalid before anything is written.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "billing.HandleWebhook"
	if s.cfg.WebhookSecret == "" {
		return errs.NotConfigured("stripe webhook")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return &errs.Error{Code: errs.EInvalid, Msg: "Webhook Error: " + err.Error(), Op: op}
	}

	if !s.claim(ctx, event.ID) {
		s.logger.Info("Duplicate webhook event ignored", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		s.release(ctx, event.ID)
		s.logger.Error("Error processing webhook", zap.String("event_id", event.ID), zap.String("type", string(event.Type)), zap.Error(err))
		return &errs.Error{Code: errs.EInternal, Msg: "Error processing webhook", Op: op, Err: err}
	}
	return nil
}

func (s *Service) claim(ctx context.Context, id string) bool {
	if s.events == nil || id == "" {
		return true
	}
	ok, err := s.events.ClaimEvent(ctx, id, eventTTL)
	switch {
	case errs.Is(err, errs.ENotConfigured):
		return true
	case err != nil:
		// every handler below is safe to repeat
		s.logger.Warn("Webhook de-duplication unavailable, processing anyway", zap.String("event_id", id), zap.Error(err))
		return true
	}
	return ok
}

func (s *Service) release(ctx context.Context, id string) {
	if s.events == nil || id == "" {
		return
	}
	if err := s.events.ReleaseEvent(ctx, id); err != nil && !errs.Is(err, errs.ENotConfigured) {
		s.logger.Warn("Failed to release webhook event", zap.String("event_id", id), zap.Error(err))
	}
}

func (s *Service) apply(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return err
		}
		return s.checkoutCompleted(ctx, &sess)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		if sub.Customer == nil {
			s.logger.Warn("Subscription event without customer", zap.String("subscription_id", sub.ID))
			return nil
		}
		active := sub.Status == stripe.SubscriptionStatusActive
		n, err := s.stores.SyncSubscription(ctx, sub.Customer.ID, sub.ID, active)
		if err != nil {
			return err
		}
		s.logger.Info("Subscription synced",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", sub.Customer.ID),
			zap.Bool("active", active),
			zap.Int64("stores", n))
		return nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		n, err := s.stores.DeactivateSubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		s.logger.Info("Subscription deleted, stores deactivated", zap.String("subscription_id", sub.ID), zap.Int64("stores", n))
		return nil
	}

	s.logger.Info("Unhandled event type", zap.String("type", string(event.Type)))
	return nil
}

// checkoutCompleted provisions a store for a first-time buyer, or upgrades
// the store the user already owns (such as the free one created at
// sign-up) so later subscription events can find it by customer and
// subscription id.
func (s *Service) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata["userId"]
	if userID == "" {
		s.logger.Warn("Checkout session without user id", zap.String("session_id", sess.ID))
		return nil
	}
	plan := sess.Metadata["plan"]
	if plan == "" {
		plan = "basic"
	}
	var customerID, subscriptionID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	_, err := s.stores.FindStoreByOwner(ctx, userID)
	switch {
	case err == nil:
		return s.upgrade(ctx, sess.ID, userID, customerID, subscriptionID, plan)
	case !errs.Is(err, errs.ENotFound):
		return err
	}

	slug := tenancy.GenerateSlug("store")
	store, created, err := s.stores.ProvisionStore(ctx, repository.ProvisionRequest{
		OwnerUserID:          userID,
		Name:                 "Store " + slug,
		Slug:                 slug,
		Plan:                 plan,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
	})
	if err != nil {
		return err
	}
	if !created {
		// a concurrent provision won; bill the store it created
		return s.upgrade(ctx, sess.ID, userID, customerID, subscriptionID, plan)
	}
	s.audit.Record(audit.Event{
		Service:  "billing",
		Action:   "store.provision",
		ActorID:  userID,
		EntityID: store.ID,
		Data:     map[string]interface{}{"plan": plan, "session_id": sess.ID},
	})
	s.logger.Info("Store provisioned from checkout", zap.String("user_id", userID), zap.String("store_id", store.ID))
	return nil
}

func (s *Service) upgrade(ctx context.Context, sessionID, userID, customerID, subscriptionID, plan string) error {
	store, err := s.stores.AttachBilling(ctx, userID, customerID, subscriptionID, plan)
	if err != nil {
		return err
	}
	s.audit.Record(audit.Event{
		Service:  "billing",
		Action:   "store.subscribe",
		ActorID:  userID,
		EntityID: store.ID,
		Data:     map[string]interface{}{"plan": plan, "session_id": sessionID, "customer_id": customerID},
	})
	s.logger.Info("Store attached to checkout",
		zap.String("user_id", userID),
		zap.String("store_id", store.ID),
		zap.String("plan", plan))
	return nil
}
