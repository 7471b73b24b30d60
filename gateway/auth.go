package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/identity"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/tenancy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	StoreName string `json:"store_name"`
}

func (g *Gateway) bindCredentials(c *gin.Context) (*credentials, bool) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		g.badRequest(c, "Unable to parse credentials", err)
		return nil, false
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		g.fail(c, errs.Invalid("email and password are required"))
		return nil, false
	}
	return &req, true
}

func (g *Gateway) setSessionCookie(c *gin.Context, s *identity.Session) {
	if s.AccessToken == "" {
		return
	}
	maxAge := int(s.ExpiresIn)
	if maxAge <= 0 {
		maxAge = int(time.Hour / time.Second)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, s.AccessToken, maxAge, "/", "", c.Request.TLS != nil, true)
}

func (g *Gateway) upsertUser(ctx context.Context, u identity.User, signedIn bool) {
	user := &models.User{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		LastSignInAt:     u.LastSignInAt,
	}
	if signedIn && user.LastSignInAt == nil {
		now := time.Now()
		user.LastSignInAt = &now
	}
	if err := g.repo.UpsertUser(ctx, user); err != nil {
		g.logger.Warn("Failed to record user", zap.String("user_id", u.ID), zap.Error(err))
	}
}

// signUp creates the account and its free basic store.
func (g *Gateway) signUp(c *gin.Context) {
	req, valid := g.bindCredentials(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	session, err := g.accounts.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		g.fail(c, err)
		return
	}
	if session.User.Email == "" {
		session.User.Email = req.Email
	}
	g.upsertUser(ctx, session.User, false)

	base := strings.TrimSpace(req.StoreName)
	if base == "" {
		base = "store"
	}
	slug := tenancy.GenerateSlug(base)
	name := strings.TrimSpace(req.StoreName)
	if name == "" {
		name = "Store " + slug
	}
	store, isNew, err := g.repo.ProvisionStore(ctx, repository.ProvisionRequest{
		OwnerUserID: session.User.ID,
		Name:        name,
		Slug:        slug,
		Plan:        g.config.Platform.DefaultPlan,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	if isNew {
		g.audit.Record(audit.Event{
			Service:  "auth",
			Action:   "store.provision",
			ActorID:  session.User.ID,
			EntityID: store.ID,
			Data:     map[string]interface{}{"plan": store.Plan, "source": "signup"},
		})
	}

	g.setSessionCookie(c, session)
	body := gin.H{"user": session.User, "store": store}
	if session.AccessToken != "" {
		body["session"] = session
	}
	created(c, body)
}

func (g *Gateway) signIn(c *gin.Context) {
	req, valid := g.bindCredentials(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	session, err := g.accounts.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.upsertUser(ctx, session.User, true)

	if g.bootstrapAdmins[strings.ToLower(session.User.Email)] {
		if err := g.repo.GrantPlatformAdmin(ctx, session.User.ID); err != nil {
			g.logger.Warn("Failed to grant bootstrap admin", zap.String("user_id", session.User.ID), zap.Error(err))
		}
	}

	res := g.resolver.Resolve(ctx, &tenancy.Identity{UserID: session.User.ID, Email: session.User.Email, Token: session.AccessToken})
	redirect := tenancy.DashboardPath
	if res.Kind == tenancy.PlatformAdmin {
		redirect = tenancy.AdminPath
	}

	g.setSessionCookie(c, session)
	ok(c, gin.H{"session": session, "role": res.Kind.String(), "redirect": redirect})
}

// signOut revokes the access token locally and on the provider.
func (g *Gateway) signOut(c *gin.Context) {
	token := accessToken(c)
	ctx := c.Request.Context()
	if token != "" {
		if err := g.tokens.Revoke(ctx, token); err != nil {
			g.fail(c, err)
			return
		}
		if err := g.accounts.SignOut(ctx, token); err != nil {
			g.logger.Warn("Provider sign-out failed", zap.Error(err))
		}
	}
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	ok(c, gin.H{"signed_out": true})
}

func (g *Gateway) me(c *gin.Context) {
	id, err := g.identify(c)
	if err != nil {
		g.fail(c, err)
		return
	}
	if id == nil {
		g.fail(c, &errs.Error{Code: errs.EUnauthorized, Msg: "not signed in"})
		return
	}
	res := g.resolver.Resolve(c.Request.Context(), id)
	ok(c, gin.H{"user": id, "role": res.Kind.String(), "store": res.Store})
}
