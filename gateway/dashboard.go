package gateway

import (
	"context"
	"strings"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// productView is a product with its price ready for display.
type productView struct {
	models.Product
	Price money.Amount `json:"price"`
}

func productViews(products []models.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{Product: p, Price: money.NewAmount(p.PriceCents)})
	}
	return out
}

func (g *Gateway) recordTenant(c *gin.Context, action, entityID string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["store_id"] = currentStore(c).ID
	g.audit.Record(audit.Event{
		Service:  "dashboard",
		Action:   action,
		ActorID:  actorID(c),
		EntityID: entityID,
		Data:     data,
	})
}

func (g *Gateway) dashboard(c *gin.Context) {
	overview, err := g.resolver.Overview(c.Request.Context(), currentStore(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, overview)
}

func (g *Gateway) analytics(c *gin.Context) {
	a, err := g.resolver.Analytics(c.Request.Context(), currentStore(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, a)
}

func (g *Gateway) getSettings(c *gin.Context) {
	ok(c, currentStore(c))
}

type settingsRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (g *Gateway) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, "Unable to parse settings", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		g.fail(c, errs.Invalid("store name is required"))
		return
	}
	store := currentStore(c)
	updated, err := g.repo.UpdateStoreSettings(c.Request.Context(), store.ID, actorID(c), req.Name, strings.TrimSpace(req.Description))
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "store.settings", store.ID, map[string]interface{}{"name": updated.Name})
	ok(c, updated)
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.repo.ListProducts(c.Request.Context(), currentStore(c).ID, cast.ToBool(c.Query("active")))
	if err != nil {
		g.fail(c, err)
		return
	}
	page, size := parsePagination(c)
	views := productViews(products)
	paged(c, pageOf(views, page, size), len(views), page, size)
}

func (g *Gateway) bindProduct(c *gin.Context) (repository.ProductInput, bool) {
	var in repository.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		g.badRequest(c, "Unable to parse product", err)
		return in, false
	}
	return in, true
}

func (g *Gateway) createProduct(c *gin.Context) {
	in, valid := g.bindProduct(c)
	if !valid {
		return
	}
	p, err := g.repo.CreateProduct(c.Request.Context(), currentStore(c).ID, in)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "product.create", p.ID, map[string]interface{}{"price_cents": p.PriceCents})
	created(c, productView{Product: *p, Price: money.NewAmount(p.PriceCents)})
}

func (g *Gateway) updateProduct(c *gin.Context) {
	in, valid := g.bindProduct(c)
	if !valid {
		return
	}
	p, err := g.repo.UpdateProduct(c.Request.Context(), currentStore(c).ID, c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "product.update", p.ID, nil)
	ok(c, productView{Product: *p, Price: money.NewAmount(p.PriceCents)})
}

func (g *Gateway) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := g.repo.DeleteProduct(c.Request.Context(), currentStore(c).ID, id); err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "product.delete", id, nil)
	ok(c, gin.H{"deleted": id})
}

func (g *Gateway) toggleProduct(c *gin.Context) {
	p, err := g.repo.ToggleProduct(c.Request.Context(), currentStore(c).ID, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "product.toggle", p.ID, map[string]interface{}{"active": p.Active})
	ok(c, productView{Product: *p, Price: money.NewAmount(p.PriceCents)})
}

func (g *Gateway) listOrders(c *gin.Context) {
	status := models.OrderStatus(strings.TrimSpace(c.Query("status")))
	orders, err := g.repo.ListOrders(c.Request.Context(), currentStore(c).ID, status, cast.ToInt(c.Query("limit")))
	if err != nil {
		g.fail(c, err)
		return
	}
	rows := tenancy.OrderRows(orders)
	page, size := parsePagination(c)
	paged(c, pageOf(rows, page, size), len(rows), page, size)
}

func (g *Gateway) getOrder(c *gin.Context) {
	o, err := g.repo.GetOrder(c.Request.Context(), currentStore(c).ID, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, tenancy.OrderRows([]models.Order{*o})[0])
}

func (g *Gateway) createOrder(c *gin.Context) {
	var in repository.OrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		g.badRequest(c, "Unable to parse order", err)
		return
	}
	o, err := g.repo.CreateOrder(c.Request.Context(), currentStore(c).ID, in)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, "order.create", o.ID, map[string]interface{}{"total_cents": o.TotalCents})
	created(c, tenancy.OrderRows([]models.Order{*o})[0])
}

func (g *Gateway) advanceOrder(c *gin.Context) {
	g.transition(c, "order.advance", g.repo.AdvanceOrder)
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	g.transition(c, "order.cancel", g.repo.CancelOrder)
}

type transitionFunc func(ctx context.Context, storeID, id string) (*models.Order, error)

func (g *Gateway) transition(c *gin.Context, action string, fn transitionFunc) {
	o, err := fn(c.Request.Context(), currentStore(c).ID, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	g.recordTenant(c, action, o.ID, map[string]interface{}{"status": string(o.Status)})
	ok(c, tenancy.OrderRows([]models.Order{*o})[0])
}
