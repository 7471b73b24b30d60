package gateway

import (
	"github.com/example/storefront/pkg/platform"
	"github.com/gin-gonic/gin"
)

func (g *Gateway) adminStats(c *gin.Context) {
	stats, err := g.admin.Stats(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, stats)
}

func (g *Gateway) adminStores(c *gin.Context) {
	stores, err := g.admin.Stores(c.Request.Context(), c.Query("q"))
	if err != nil {
		g.fail(c, err)
		return
	}
	page, size := parsePagination(c)
	paged(c, pageOf(stores, page, size), len(stores), page, size)
}

func (g *Gateway) adminToggleStore(c *gin.Context) {
	store, err := g.admin.ToggleStore(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, store)
}

func (g *Gateway) adminUsers(c *gin.Context) {
	users, err := g.admin.Users(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	page, size := parsePagination(c)
	paged(c, pageOf(users, page, size), len(users), page, size)
}

type createStoreRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

func (g *Gateway) adminCreateStore(c *gin.Context) {
	var req createStoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			g.badRequest(c, "Unable to parse store", err)
			return
		}
	}
	res, err := g.admin.CreateStoreForUser(c.Request.Context(), actorID(c), c.Param("id"), req.Name, req.Plan)
	if err != nil {
		g.fail(c, err)
		return
	}
	if res.Created {
		created(c, res)
		return
	}
	ok(c, res)
}

func (g *Gateway) adminToggleAdmin(c *gin.Context) {
	res, err := g.admin.ToggleAdmin(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, res)
}

func (g *Gateway) adminReports(c *gin.Context) {
	rep, err := g.admin.Reports(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, rep)
}

func (g *Gateway) adminPlans(c *gin.Context) {
	plans, err := g.admin.Plans(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, plans)
}

func (g *Gateway) bindPlan(c *gin.Context) (platform.PlanInput, bool) {
	var in platform.PlanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		g.badRequest(c, "Unable to parse plan", err)
		return in, false
	}
	return in, true
}

func (g *Gateway) adminCreatePlan(c *gin.Context) {
	in, valid := g.bindPlan(c)
	if !valid {
		return
	}
	plan, err := g.admin.CreatePlan(c.Request.Context(), actorID(c), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	created(c, plan)
}

func (g *Gateway) adminUpdatePlan(c *gin.Context) {
	in, valid := g.bindPlan(c)
	if !valid {
		return
	}
	plan, err := g.admin.UpdatePlan(c.Request.Context(), actorID(c), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, plan)
}

func (g *Gateway) adminDeletePlan(c *gin.Context) {
	id := c.Param("id")
	if err := g.admin.DeletePlan(c.Request.Context(), actorID(c), id); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}
