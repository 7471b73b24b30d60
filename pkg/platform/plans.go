package platform

import (
	"context"
	"errors"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const (
	pricingKey = "pricing:plans"
	pricingTTL = 5 * time.Minute
)

// PricedPlan is a catalog entry as shown on the public pricing page.
type PricedPlan struct {
	models.Plan
	Price money.Amount `json:"price"`
}

// PlanInput is the editable part of a plan.
type PlanInput struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	StripePriceID string   `json:"stripe_price_id"`
	PriceCents    int64    `json:"price_cents"`
	Features      []string `json:"features"`
	Active        *bool    `json:"active"`
}

func (in PlanInput) plan() *models.Plan {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return &models.Plan{
		ID:            in.ID,
		Name:          in.Name,
		Description:   in.Description,
		StripePriceID: in.StripePriceID,
		PriceCents:    in.PriceCents,
		Features:      in.Features,
		Active:        active,
	}
}

func (s *Service) CreatePlan(ctx context.Context, actorID string, in PlanInput) (*models.Plan, error) {
	plan := in.plan()
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.invalidatePricing(ctx)
	s.record("plan.create", actorID, plan.ID, map[string]interface{}{"price_cents": plan.PriceCents})
	return plan, nil
}

func (s *Service) UpdatePlan(ctx context.Context, actorID, id string, in PlanInput) (*models.Plan, error) {
	in.ID = id
	plan := in.plan()
	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.invalidatePricing(ctx)
	s.record("plan.update", actorID, id, map[string]interface{}{"price_cents": plan.PriceCents, "active": plan.Active})
	return s.repo.GetPlan(ctx, id)
}

func (s *Service) DeletePlan(ctx context.Context, actorID, id string) error {
	if err := s.repo.DeletePlan(ctx, id); err != nil {
		return err
	}
	s.invalidatePricing(ctx)
	s.record("plan.delete", actorID, id, nil)
	return nil
}

// Pricing lists the active plans with display prices. The list is cached
// and dropped on every catalog change.
func (s *Service) Pricing(ctx context.Context) ([]PricedPlan, error) {
	var cached []PricedPlan
	if s.cache != nil {
		err := s.cache.GetJSON(ctx, pricingKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) && !errs.Is(err, errs.ENotConfigured) {
			s.logger.Warn("Pricing cache read failed", zap.Error(err))
		}
	}

	plans, err := s.repo.ListPlans(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]PricedPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, PricedPlan{Plan: p, Price: money.NewAmount(p.PriceCents)})
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, pricingKey, out, pricingTTL); err != nil && !errs.Is(err, errs.ENotConfigured) {
			s.logger.Warn("Pricing cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) invalidatePricing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, pricingKey); err != nil && !errs.Is(err, errs.ENotConfigured) {
		s.logger.Warn("Pricing cache invalidation failed", zap.Error(err))
	}
}
