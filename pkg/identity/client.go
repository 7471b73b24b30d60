// Package identity talks to the hosted authentication service (a
// GoTrue-compatible REST API) and verifies the access tokens it issues.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
)

// User is the provider's account record.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session is an issued access token and its user.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// providerError covers the error shapes GoTrue returns.
type providerError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

func (e providerError) text() string {
	for _, s := range []string{e.Description, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

type Client struct {
	baseURL string
	anonKey string
	timeout time.Duration
}

// NewClient never fails; without a URL and key every call returns a
// "not configured" error.
func NewClient(cfg *config.IdentityConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{timeout: timeout}
	if cfg.Configured() {
		c.baseURL = strings.TrimRight(cfg.URL, "/") + "/auth/v1"
		c.anonKey = cfg.AnonKey
	}
	return c
}

func (c *Client) Configured() bool {
	return c.baseURL != ""
}

func (c *Client) headers(token string) gout.H {
	h := gout.H{"apikey": c.anonKey}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	} else {
		h["Authorization"] = "Bearer " + c.anonKey
	}
	return h
}

// do sends a request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op string, df *dataflow.DataFlow, out interface{}) error {
	var (
		body []byte
		code int
	)
	err := df.WithContext(ctx).SetTimeout(c.timeout).BindBody(&body).Code(&code).Do()
	if err != nil {
		return &errs.Error{Code: errs.EUnavailable, Msg: "identity service unreachable", Op: op, Err: err}
	}
	if code >= 200 && code < 300 {
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &errs.Error{Code: errs.EUnavailable, Msg: "malformed identity response", Op: op, Err: err}
		}
		return nil
	}

	var pe providerError
	_ = json.Unmarshal(body, &pe)
	msg := pe.text()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		if msg == "" {
			msg = "invalid credentials"
		}
		return &errs.Error{Code: errs.EUnauthorized, Msg: msg, Op: op}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusConflict:
		if msg == "" {
			msg = "request rejected by identity service"
		}
		return &errs.Error{Code: errs.EInvalid, Msg: msg, Op: op}
	case code == http.StatusNotFound:
		return &errs.Error{Code: errs.ENotFound, Msg: "user not found", Op: op}
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &errs.Error{Code: errs.EUnavailable, Msg: "identity service error: " + msg, Op: op}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates an account. The session is empty when the provider
// requires email confirmation first.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	const op = "identity.SignUp"
	if !c.Configured() {
		return nil, errs.NotConfigured("identity service")
	}
	var resp struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	df := gout.POST(c.baseURL + "/signup").SetHeader(c.headers("")).SetJSON(credentials{Email: email, Password: password})
	if err := c.do(ctx, op, df, &resp); err != nil {
		return nil, err
	}
	s := resp.Session
	if s.User.ID == "" {
		s.User.ID, s.User.Email = resp.ID, resp.Email
	}
	if s.User.ID == "" {
		return nil, &errs.Error{Code: errs.EUnavailable, Msg: "identity service returned no user", Op: op}
	}
	return &s, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	const op = "identity.SignIn"
	if !c.Configured() {
		return nil, errs.NotConfigured("identity service")
	}
	var s Session
	df := gout.POST(c.baseURL + "/token").
		SetQuery(gout.H{"grant_type": "password"}).
		SetHeader(c.headers("")).
		SetJSON(credentials{Email: email, Password: password})
	if err := c.do(ctx, op, df, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, &errs.Error{Code: errs.EUnavailable, Msg: "identity service returned no token", Op: op}
	}
	return &s, nil
}

// SignOut revokes the refresh tokens of the session on the provider.
func (c *Client) SignOut(ctx context.Context, token string) error {
	if !c.Configured() {
		return errs.NotConfigured("identity service")
	}
	return c.do(ctx, "identity.SignOut", gout.POST(c.baseURL+"/logout").SetHeader(c.headers(token)), nil)
}

// GetUser returns the user owning an access token.
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	if !c.Configured() {
		return nil, errs.NotConfigured("identity service")
	}
	var u User
	if err := c.do(ctx, "identity.GetUser", gout.GET(c.baseURL+"/user").SetHeader(c.headers(token)), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
