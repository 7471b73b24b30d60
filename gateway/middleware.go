package gateway

import (
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	resolutionKey = "resolution"
	// AccessTokenCookie carries the access token for browser sessions.
	AccessTokenCookie = "sb-access-token"
)

func accessToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, token, found := strings.Cut(h, " "); found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// identify returns the caller's identity, or nil for anonymous callers and
// rejected tokens. Only an unreachable verifier is an error.
func (g *Gateway) identify(c *gin.Context) (*tenancy.Identity, error) {
	token := accessToken(c)
	if token == "" {
		return nil, nil
	}
	claims, err := g.tokens.Verify(c.Request.Context(), token)
	switch {
	case errs.Is(err, errs.EUnauthorized):
		g.logger.Debug("Access token rejected", zap.Error(err))
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &tenancy.Identity{UserID: claims.UserID, Email: claims.Email, Token: token}, nil
}

// guard resolves the caller's role and lets the request through only when
// the area allows it. Anything else is answered here: redirects for the
// wrong area, state views for missing or inactive stores, 403 for blocked
// mutations. Tenant handlers therefore always see an active store.
func (g *Gateway) guard(area tenancy.Area) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := g.identify(c)
		if err != nil {
			g.fail(c, err)
			return
		}
		res := g.resolver.Resolve(c.Request.Context(), id)
		c.Set(resolutionKey, res)

		mutation := c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead
		d := tenancy.Decide(res, area, mutation)
		switch d.Outcome {
		case tenancy.Allow:
			c.Next()
		case tenancy.Redirect:
			c.Header("Location", d.Location)
			c.AbortWithStatusJSON(d.Status(), gin.H{"redirect": d.Location})
		case tenancy.Render:
			body := gin.H{"state": d.State, "message": d.Message}
			if d.Location != "" {
				body["link"] = d.Location
			}
			if res.Store != nil {
				body["store"] = gin.H{"id": res.Store.ID, "name": res.Store.Name, "slug": res.Store.Slug}
			}
			c.AbortWithStatusJSON(d.Status(), body)
		case tenancy.Deny:
			c.AbortWithStatusJSON(d.Status(), gin.H{
				"state": d.State,
				"error": gin.H{"code": "forbidden", "message": d.Message},
			})
		}
	}
}

func resolution(c *gin.Context) tenancy.Resolution {
	if v, ok := c.Get(resolutionKey); ok {
		return v.(tenancy.Resolution)
	}
	return tenancy.Resolution{}
}

// currentStore is the active store of a guarded tenant request.
func currentStore(c *gin.Context) *models.Store {
	return resolution(c).Store
}

// actorID is the user id of a guarded request.
func actorID(c *gin.Context) string {
	if id := resolution(c).Identity; id != nil {
		return id.UserID
	}
	return ""
}
