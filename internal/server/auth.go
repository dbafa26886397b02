package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/promptobjects/core/internal/poerr"
)

// AuthConfig enables bearer-token validation on every endpoint when
// JWKSURL is set. A single-deployer convenience, not tenant isolation.
type AuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// JWTValidator validates bearer tokens against a provider's JWKS,
// cached and auto-refreshed to handle key rotation.
type JWTValidator struct {
	cfg   AuthConfig
	cache *jwk.Cache
}

// NewJWTValidator fetches the JWKS once eagerly so a bad URL fails at
// boot rather than on the first request.
func NewJWTValidator(cfg AuthConfig) (*JWTValidator, error) {
	ctx := context.Background()
	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, poerr.Wrap(poerr.KindConfig, "registering JWKS URL", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, poerr.Wrap(poerr.KindConfig, "fetching JWKS from "+cfg.JWKSURL, err)
	}
	return &JWTValidator{cfg: cfg, cache: cache}, nil
}

// Validate parses and verifies one token string.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) error {
	keyset, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return poerr.Wrap(poerr.KindConfig, "getting JWKS", err)
	}
	opts := []jwt.ParseOption{jwt.WithKeySet(keyset), jwt.WithValidate(true)}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if _, err := jwt.Parse([]byte(tokenString), opts...); err != nil {
		return poerr.Wrap(poerr.KindInvalidInput, "invalid token", err)
	}
	return nil
}

// Middleware rejects requests without a valid Bearer token. WebSocket
// upgrades pass the token the same way, in the Authorization header.
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "invalid Authorization format, expected: Bearer <token>")
			return
		}
		if err := v.Validate(r.Context(), tokenString); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
