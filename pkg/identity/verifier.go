package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/errs"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// Claims identify the user behind a verified access token.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// RevocationStore remembers access tokens invalidated by sign-out.
type RevocationStore interface {
	RevokeToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, token string) (bool, error)
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks access tokens. With a JWT secret tokens are validated
// locally; otherwise the provider is asked for the token's user.
type Verifier struct {
	client  *Client
	secret  []byte
	revoked RevocationStore
	logger  *zap.Logger
}

func NewVerifier(client *Client, jwtSecret string, revoked RevocationStore, logger *zap.Logger) *Verifier {
	v := &Verifier{client: client, revoked: revoked, logger: logger}
	if jwtSecret != "" {
		v.secret = []byte(jwtSecret)
	}
	return v
}

func (v *Verifier) parse(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, &errs.Error{Code: errs.EUnauthorized, Msg: "invalid access token", Op: "identity.Verify", Err: err}
	}
	if claims.Subject == "" {
		return nil, &errs.Error{Code: errs.EUnauthorized, Msg: "access token has no subject", Op: "identity.Verify"}
	}
	return claims, nil
}

// Verify returns the claims of a valid, unrevoked token.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, &errs.Error{Code: errs.EUnauthorized, Msg: "missing access token", Op: "identity.Verify"}
	}
	if err := v.checkRevoked(ctx, token); err != nil {
		return nil, err
	}

	if v.secret == nil {
		user, err := v.client.GetUser(ctx, token)
		if err != nil {
			return nil, err
		}
		return &Claims{UserID: user.ID, Email: user.Email}, nil
	}

	claims, err := v.parse(token)
	if err != nil {
		return nil, err
	}
	c := &Claims{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}

func (v *Verifier) checkRevoked(ctx context.Context, token string) error {
	if v.revoked == nil {
		return nil
	}
	revoked, err := v.revoked.IsTokenRevoked(ctx, token)
	switch {
	case errs.Is(err, errs.ENotConfigured):
		return nil
	case err != nil:
		// an unreachable store disables revocation, it does not lock everyone out
		v.logger.Warn("Token revocation check failed, accepting token", zap.Error(err))
		return nil
	case revoked:
		return &errs.Error{Code: errs.EUnauthorized, Msg: "session signed out", Op: "identity.Verify"}
	}
	return nil
}

// Revoke rejects the token for the rest of its lifetime. Without a
// reachable revocation store the token simply runs to expiry.
func (v *Verifier) Revoke(ctx context.Context, token string) error {
	if v.revoked == nil {
		return nil
	}
	ttl := time.Hour
	if v.secret != nil {
		if claims, err := v.parse(token); err == nil && claims.ExpiresAt != nil {
			ttl = time.Until(claims.ExpiresAt.Time)
		}
	}
	err := v.revoked.RevokeToken(ctx, token, ttl)
	switch {
	case errs.Is(err, errs.ENotConfigured):
		return nil
	case err != nil:
		v.logger.Warn("Token revocation failed, token stays valid until expiry", zap.Error(err))
	}
	return nil
}
