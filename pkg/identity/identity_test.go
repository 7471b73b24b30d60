package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/errs"
	"github.com/example/storefront/pkg/repository"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const anonKey = "anon-key"

// fakeProvider mimics the subset of the GoTrue API the client uses.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anonKey, r.Header.Get("apikey"))
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"msg":"User already registered"}`))
			return
		}
		if body.Email == "confirm@example.com" {
			_, _ = w.Write([]byte(`{"id":"u-confirm","email":"confirm@example.com"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-new","token_type":"bearer","expires_in":3600,"user":{"id":"u-new","email":"` + body.Email + `"}}`))
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600,"user":{"id":"u1","email":"` + body.Email + `"}}`))
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"owner@example.com"}`))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *Client {
	srv := fakeProvider(t)
	return NewClient(&config.IdentityConfig{URL: srv.URL + "/", AnonKey: anonKey, Timeout: 2 * time.Second})
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	s, err := c.SignUp(ctx, "new@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-new", s.User.ID)
	assert.Equal(t, "tok-new", s.AccessToken)

	s, err = c.SignUp(ctx, "confirm@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-confirm", s.User.ID)
	assert.Empty(t, s.AccessToken)

	_, err = c.SignUp(ctx, "taken@example.com", "secret")
	assert.Equal(t, errs.EInvalid, errs.Code(err))
	assert.Equal(t, "User already registered", errs.Message(err))

	s, err = c.SignIn(ctx, "owner@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", s.AccessToken)

	_, err = c.SignIn(ctx, "owner@example.com", "wrong")
	assert.Equal(t, errs.EInvalid, errs.Code(err))
	assert.Equal(t, "Invalid login credentials", errs.Message(err))

	u, err := c.GetUser(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", u.Email)
	_, err = c.GetUser(ctx, "forged")
	assert.Equal(t, errs.EUnauthorized, errs.Code(err))

	assert.NoError(t, c.SignOut(ctx, "tok-1"))
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient(&config.IdentityConfig{})
	_, err := c.SignIn(context.Background(), "a@example.com", "x")
	assert.Equal(t, errs.ENotConfigured, errs.Code(err))
	assert.Equal(t, "identity service not configured", errs.Message(err))
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(&config.IdentityConfig{URL: url, AnonKey: anonKey, Timeout: time.Second})
	_, err := c.GetUser(context.Background(), "tok")
	assert.Equal(t, errs.EUnavailable, errs.Code(err))
}

func sign(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifierLocal(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	v := NewVerifier(NewClient(&config.IdentityConfig{}), "jwt-secret", store, zaptest.NewLogger(t))

	valid := sign(t, "jwt-secret", &accessClaims{
		Email: "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	claims, err := v.Verify(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": sign(t, "other", &accessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}),
		"expired": sign(t, "jwt-secret", &accessClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"no subject": sign(t, "jwt-secret", &accessClaims{Email: "x@example.com"}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, token)
			assert.Equal(t, errs.EUnauthorized, errs.Code(err))
		})
	}

	require.NoError(t, v.Revoke(ctx, valid))
	_, err = v.Verify(ctx, valid)
	assert.Equal(t, errs.EUnauthorized, errs.Code(err))
	assert.Equal(t, "session signed out", errs.Message(err))
	ttl := mr.TTL(mr.Keys()[0])
	assert.True(t, ttl > 50*time.Minute && ttl <= time.Hour, ttl.String())
}

func TestVerifierRemote(t *testing.T) {
	ctx := context.Background()
	v := NewVerifier(newClient(t), "", repository.NewRedisRepository(&config.RedisConfig{}), zaptest.NewLogger(t))

	claims, err := v.Verify(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	_, err = v.Verify(ctx, "forged")
	assert.Equal(t, errs.EUnauthorized, errs.Code(err))
	assert.NoError(t, v.Revoke(ctx, "tok-1"), "revocation without redis is a no-op")
}

func TestVerifierWithUnreachableRevocationStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	}))
	v := NewVerifier(NewClient(&config.IdentityConfig{}), "jwt-secret", store, zaptest.NewLogger(t))

	token := sign(t, "jwt-secret", &accessClaims{
		Email: "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	claims, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	assert.NoError(t, v.Revoke(ctx, token))

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.Equal(t, errs.EUnauthorized, errs.Code(err), "bad tokens are still rejected")
}
