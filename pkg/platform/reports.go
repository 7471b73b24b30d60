package platform

import (
	"context"
	"sort"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const (
	recentLimit   = 5
	activityLimit = 10
	auditLimit    = 20
)

// Growth compares stores created this calendar month with the previous one.
type Growth struct {
	CurrentMonth  int64   `json:"current_month"`
	PreviousMonth int64   `json:"previous_month"`
	Percent       float64 `json:"percent"`
}

// Activity is one line of the recent activity feed.
type Activity struct {
	Kind     string        `json:"kind"`
	EntityID string        `json:"entity_id"`
	StoreID  string        `json:"store_id"`
	Amount   *money.Amount `json:"amount,omitempty"`
	At       time.Time     `json:"at"`
}

type Reports struct {
	Stats               repository.PlatformStats `json:"stats"`
	ActiveSubscriptions int64                    `json:"active_subscriptions"`
	Revenue             money.Amount             `json:"revenue"`
	Growth              Growth                   `json:"growth"`
	Plans               []repository.PlanCount   `json:"plans"`
	Activity            []Activity               `json:"activity"`
	Audit               []*repository.AuditLog   `json:"audit,omitempty"`
}

func growthPercent(current, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

// Reports assembles the admin reports page. The audit section is omitted
// when the audit store is unavailable.
func (s *Service) Reports(ctx context.Context) (*Reports, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Reports{
		Stats:               stats,
		ActiveSubscriptions: stats.ActiveStores,
		Revenue:             money.NewAmount(stats.RevenueCents),
	}

	now := s.now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	if rep.Growth.CurrentMonth, err = s.repo.CountStoresCreated(ctx, thisMonth, thisMonth.AddDate(0, 1, 0)); err != nil {
		return nil, err
	}
	if rep.Growth.PreviousMonth, err = s.repo.CountStoresCreated(ctx, lastMonth, thisMonth); err != nil {
		return nil, err
	}
	rep.Growth.Percent = growthPercent(rep.Growth.CurrentMonth, rep.Growth.PreviousMonth)

	if rep.Plans, err = s.repo.PlanDistribution(ctx); err != nil {
		return nil, err
	}
	if rep.Activity, err = s.activity(ctx); err != nil {
		return nil, err
	}

	if s.audits != nil {
		logs, err := s.audits.RecentAuditLogs(ctx, auditLimit)
		switch {
		case err == nil:
			rep.Audit = logs
		case errs.Is(err, errs.ENotConfigured):
		default:
			s.logger.Warn("Audit store unavailable for reports", zap.Error(err))
		}
	}
	return rep, nil
}

// activity merges the latest stores and completed orders, newest first.
func (s *Service) activity(ctx context.Context) ([]Activity, error) {
	stores, err := s.repo.RecentStores(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.RecentCompletedOrders(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	out := make([]Activity, 0, len(stores)+len(orders))
	for _, st := range stores {
		out = append(out, Activity{Kind: "store_created", EntityID: st.ID, StoreID: st.ID, At: st.CreatedAt})
	}
	for _, o := range orders {
		amount := money.NewAmount(o.TotalCents)
		out = append(out, Activity{Kind: "order_completed", EntityID: o.ID, StoreID: o.StoreID, Amount: &amount, At: o.CreatedAt})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > activityLimit {
		out = out[:activityLimit]
	}
	return out, nil
}
