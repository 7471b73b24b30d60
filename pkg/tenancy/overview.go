package tenancy

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/repository"
)

const recentOrders = 5

// OrderRow is an order with its total ready for display.
type OrderRow struct {
	models.Order
	Total money.Amount `json:"total"`
}

// OrderRows attaches display totals to orders.
func OrderRows(orders []models.Order) []OrderRow {
	rows := make([]OrderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, OrderRow{Order: o, Total: money.NewAmount(o.TotalCents)})
	}
	return rows
}

// Overview is the dashboard of one store.
type Overview struct {
	Store        *models.Store `json:"store"`
	Products     int64         `json:"products"`
	Orders       int64         `json:"orders"`
	Revenue      money.Amount  `json:"revenue"`
	RecentOrders []OrderRow    `json:"recent_orders"`
}

// Overview aggregates the resolved store's counts and latest orders.
func (r *Resolver) Overview(ctx context.Context, store *models.Store) (*Overview, error) {
	totals, err := r.repo.StoreTotals(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	recent, err := r.repo.ListOrders(ctx, store.ID, "", recentOrders)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Store:        store,
		Products:     totals.Products,
		Orders:       totals.Orders,
		Revenue:      money.NewAmount(totals.RevenueCents),
		RecentOrders: OrderRows(recent),
	}, nil
}

// MonthSales is the completed revenue of one calendar month.
type MonthSales struct {
	Month   string       `json:"month"`
	Orders  int64        `json:"orders"`
	Revenue money.Amount `json:"revenue"`
}

type TopProduct struct {
	Title    string       `json:"title"`
	Quantity int64        `json:"quantity"`
	Revenue  money.Amount `json:"revenue"`
}

// Analytics summarises the sales of one store.
type Analytics struct {
	Revenue         money.Amount `json:"revenue"`
	Orders          int64        `json:"orders"`
	CompletedOrders int64        `json:"completed_orders"`
	Customers       int64        `json:"customers"`
	AverageOrder    money.Amount `json:"average_order"`
	TopProducts     []TopProduct `json:"top_products"`
	SalesByMonth    []MonthSales `json:"sales_by_month"`
}

const analyticsMonths = 6

// Analytics computes revenue, customers, best sellers and the completed sales
// of the last six calendar months, current month included.
func (r *Resolver) Analytics(ctx context.Context, store *models.Store) (*Analytics, error) {
	totals, err := r.repo.StoreTotals(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	completed, err := r.repo.CompletedOrdersSince(ctx, store.ID, time.Time{})
	if err != nil {
		return nil, err
	}
	top, err := r.repo.TopProducts(ctx, store.ID, 5)
	if err != nil {
		return nil, err
	}

	now := r.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(analyticsMonths - 1), 0)
	months := make([]MonthSales, analyticsMonths)
	cents := make([]int64, analyticsMonths)
	for i := range months {
		months[i].Month = first.AddDate(0, i, 0).Format("2006-01")
	}
	for _, o := range completed {
		created := o.CreatedAt.In(now.Location())
		idx := (created.Year()-first.Year())*12 + int(created.Month()) - int(first.Month())
		if idx < 0 || idx >= analyticsMonths {
			continue
		}
		months[idx].Orders++
		cents[idx] += o.TotalCents
	}
	for i := range months {
		months[i].Revenue = money.NewAmount(cents[i])
	}

	a := &Analytics{
		Revenue:         money.NewAmount(totals.RevenueCents),
		Orders:          totals.Orders,
		CompletedOrders: int64(len(completed)),
		Customers:       totals.Customers,
		AverageOrder:    money.NewAmount(money.Average(totals.RevenueCents, int64(len(completed)))),
		TopProducts:     make([]TopProduct, 0, len(top)),
		SalesByMonth:    months,
	}
	for _, p := range top {
		a.TopProducts = append(a.TopProducts, TopProduct{Title: p.Title, Quantity: p.Quantity, Revenue: money.NewAmount(p.RevenueCents)})
	}
	return a, nil
}

var _ Repository = (*repository.GormRepository)(nil)
