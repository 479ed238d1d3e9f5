package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/identity"
	"github.com/MrEthical07/tokenauth/metrics/export/prometheus"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/password"
	"go.uber.org/zap"
)

func newHasher(kind string) (password.Hasher, error) {
	if kind == "argon2" {
		return password.NewArgon2(password.DefaultArgon2Config())
	}
	return password.NewBcrypt(0)
}

func newIdentityProvider(s settings) (*identity.Memory, error) {
	hasher, err := newHasher(s.PasswordHash)
	if err != nil {
		return nil, err
	}
	return identity.NewMemory(hasher)
}

func newHandler(engine *tokenauth.Engine, s settings, ping func(context.Context) error, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mountOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if len(s.TrustedProxies) > 0 {
		// loadSettings already rejected malformed entries.
		resolve, _ := httpapi.TrustedProxies(s.TrustedProxies...)
		mountOpts = append(mountOpts, httpapi.WithClientIPResolver(resolve))
	}
	if s.LoginRateLimit > 0 {
		mountOpts = append(mountOpts, httpapi.WithCredentialRateLimit(httpapi.RateLimitConfig{
			RequestsPerWindow: s.LoginRateLimit,
			Window:            time.Minute,
			Burst:             s.LoginRateLimit,
		}))
	}
	httpapi.Mount(mux, engine, mountOpts...)

	mux.HandleFunc("GET /api", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "1"})
	})

	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFromContext(r.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello " + id.ID))
	})
	mux.Handle("GET /api/protected", middleware.Guard(engine, tokenauth.RefreshInherit)(protected))

	mux.Handle("GET /health", healthHandler(ping, logger))

	if s.MetricsEnabled {
		mux.Handle("GET /metrics", prometheus.New(engine).Handler())
	}

	return httpapi.RequestLogger(logger)(mux)
}

const healthTimeout = 2 * time.Second

// healthHandler answers 200 while the revocation gateway responds and 503 otherwise.
func healthHandler(ping func(context.Context) error, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		w.Header().Set("Cache-Control", "no-store")
		if err := ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			tokenauth.WriteError(w, &tokenauth.AuthError{
				Status:  http.StatusServiceUnavailable,
				Message: "Revocation gateway unavailable",
				Err:     err,
			})
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
