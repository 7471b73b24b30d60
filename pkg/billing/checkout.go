// Package billing creates Stripe subscription checkouts and applies the
// webhook events Stripe sends back to the store records.
package billing

import (
	"context"

	"github.com/example/storefront/pkg/errs"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// CheckoutRequest starts a subscription purchase.
type CheckoutRequest struct {
	Plan   string `json:"plan"`
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

// SessionParams is a resolved checkout: price and redirect targets included.
type SessionParams struct {
	PriceID    string
	Email      string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// SessionCreator opens a hosted checkout session and returns its URL.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, p SessionParams) (string, error)
}

// StripeSessions creates checkout sessions through the Stripe API.
type StripeSessions struct {
	api *client.API
}

// NewStripeSessions returns nil when no secret key is configured.
func NewStripeSessions(secretKey string, backends *stripe.Backends) *StripeSessions {
	if secretKey == "" {
		return nil
	}
	return &StripeSessions{api: client.New(secretKey, backends)}
}

func (s *StripeSessions) CreateCheckoutSession(ctx context.Context, p SessionParams) (string, error) {
	const op = "billing.CreateCheckoutSession"
	if s == nil {
		return "", errs.NotConfigured("stripe")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(p.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", &errs.Error{Code: errs.EUnavailable, Msg: "Error creating checkout session", Op: op, Err: err}
	}
	return sess.URL, nil
}
