package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Guard.
func IdentityFromContext(ctx context.Context) (tokenauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(tokenauth.Identity)
	return id, ok
}

// WithIdentity attaches identity to ctx the way Guard does.
func WithIdentity(ctx context.Context, identity tokenauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// Guard requires a valid Bearer access token. When verification fails and the
// policy resolves to auto-refresh, the session is rotated from the refresh cookie
// and the request proceeds with the rotated identity.
func Guard(engine *tokenauth.Engine, policy tokenauth.RefreshPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				tokenauth.WriteError(w, tokenauth.MissingBearerError())
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				tokenauth.WriteError(w, tokenauth.MissingBearerError())
				return
			}

			identity, err := engine.VerifyAccess(r.Context(), token)
			if err != nil {
				if !engine.AutoRefreshEnabled(policy) {
					tokenauth.WriteError(w, err)
					return
				}

				identity, err = engine.AutoRefresh(w, r)
				if err != nil {
					tokenauth.WriteError(w, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAccessOnly guards a route with auto-refresh disabled.
func RequireAccessOnly(engine *tokenauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, tokenauth.RefreshDisabled)
}

// RequireAutoRefresh guards a route with auto-refresh enabled regardless of config.
func RequireAutoRefresh(engine *tokenauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, tokenauth.RefreshEnabled)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
