package gateway

import (
	"io"
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/billing"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StoreHeader names the store when the request does not arrive on its
// subdomain.
const StoreHeader = "X-Store-Subdomain"

const maxWebhookBody = 1 << 16

func (g *Gateway) pricing(c *gin.Context) {
	plans, err := g.admin.Pricing(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, plans)
}

// storefront lists the active products of the store addressed by the
// request's subdomain. Unknown and inactive stores are both not found.
func (g *Gateway) storefront(c *gin.Context) {
	slug := strings.ToLower(strings.TrimSpace(c.GetHeader(StoreHeader)))
	if slug == "" {
		slug = tenancy.SubdomainFromHost(c.Request.Host, g.config.Gateway.RootDomain)
	}
	if slug == "" {
		g.fail(c, errs.NotFound("store not found"))
		return
	}
	ctx := c.Request.Context()
	store, err := g.repo.FindStoreBySlug(ctx, slug)
	if err == nil && !store.Active {
		err = errs.NotFound("store not found")
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	products, err := g.repo.ListProducts(ctx, store.ID, true)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, gin.H{
		"store":    gin.H{"name": store.Name, "slug": store.Slug, "description": store.Description},
		"products": productViews(products),
	})
}

// apiError writes the flat {"error": message} body the Stripe endpoints use.
func (g *Gateway) apiError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("Stripe request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": errs.Message(err)})
}

func (g *Gateway) checkout(c *gin.Context) {
	var req billing.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.apiError(c, errs.Invalid("Plan and email are required"))
		return
	}
	if req.UserID == "" {
		if id, err := g.identify(c); err == nil && id != nil {
			req.UserID = id.UserID
		}
	}
	url, err := g.billing.Checkout(c.Request.Context(), req)
	if err != nil {
		g.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (g *Gateway) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		g.apiError(c, errs.Invalid("Webhook Error: "+err.Error()))
		return
	}
	if err := g.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		g.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
