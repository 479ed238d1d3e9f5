package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/revocation"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const cookieName = "refresh_token"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingGateway struct {
	inner   *revocation.Memory
	refuse  bool
	logouts []string
	mu      sync.Mutex
}

func (g *recordingGateway) Refresh(ctx context.Context, jti string) (bool, error) {
	if g.refuse {
		return false, nil
	}
	return g.inner.Refresh(ctx, jti)
}

func (g *recordingGateway) Logout(ctx context.Context, jti string) error {
	g.mu.Lock()
	g.logouts = append(g.logouts, jti)
	g.mu.Unlock()
	return g.inner.Logout(ctx, jti)
}

type fixture struct {
	server  *httptest.Server
	engine  *tokenauth.Engine
	gateway *recordingGateway
	clock   *clock
}

func staticProvider() tokenauth.ProviderFuncs {
	return tokenauth.ProviderFuncs{
		SignUpFunc: func(_ context.Context, creds tokenauth.Credentials) (tokenauth.Identity, error) {
			if creds.Email == "taken@example.com" {
				return tokenauth.Identity{}, context.Canceled
			}
			return tokenauth.Identity{ID: "u1", Provider: "email"}, nil
		},
		LoginFunc: func(_ context.Context, creds tokenauth.Credentials) (*tokenauth.Identity, error) {
			switch creds.Email {
			case "u1@example.com":
				return &tokenauth.Identity{ID: "u1", Provider: "email"}, nil
			case "bad@example.com":
				return nil, context.DeadlineExceeded
			default:
				return nil, nil
			}
		},
	}
}

func newFixture(t *testing.T, mutate func(*tokenauth.Config), opts ...httpapi.Option) *fixture {
	t.Helper()

	cfg := tokenauth.DefaultConfig()
	cfg.Environment = "test"
	cfg.Access.Secret = []byte("access-secret-0123456789abcdef")
	cfg.Refresh.Secret = []byte("refresh-secret-0123456789abcdef")
	cfg.Cookie.Secret = []byte("cookie-secret-0123456789abcdef01")
	if mutate != nil {
		mutate(&cfg)
	}

	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	gw := &recordingGateway{inner: revocation.NewMemory()}

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithIdentityProvider(staticProvider()).
		WithRevocationGateway(gw).
		WithClock(clk.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	mux := http.NewServeMux()
	httpapi.Mount(mux, engine, opts...)
	mux.Handle("GET /api/protected", middleware.Guard(engine, tokenauth.RefreshInherit)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := middleware.IdentityFromContext(r.Context())
			_, _ = w.Write([]byte("hello " + id.ID))
		}),
	))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{server: srv, engine: engine, gateway: gw, clock: clk}
}

func (f *fixture) post(t *testing.T, path, body string, cookie *http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) login(t *testing.T) (httpapi.SessionResponse, *http.Cookie) {
	t.Helper()

	resp := f.post(t, "/auth/login", `{"email":"u1@example.com","password":"pw-123456789"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body, refreshCookie(t, resp)
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", cookieName)
	return nil
}

func decodeEnvelope(t *testing.T, resp *http.Response) tokenauth.ErrorEnvelope {
	t.Helper()
	var env tokenauth.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestLoginIssuesSession(t *testing.T) {
	f := newFixture(t, nil)

	body, cookie := f.login(t)
	require.NotEmpty(t, body.AccessToken)
	require.Equal(t, "u1", body.UserID)
	require.Equal(t, "email", body.Provider)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)
}

func TestRefreshRotatesSession(t *testing.T) {
	f := newFixture(t, nil)

	first, cookie := f.login(t)

	resp := f.post(t, "/auth/refresh", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, "u1", second.UserID)

	rotated := refreshCookie(t, resp)
	require.NotEqual(t, cookie.Value, rotated.Value)

	replay := f.post(t, "/auth/refresh", "", cookie)
	require.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	require.Equal(t, tokenauth.MessageInvalidRefresh, decodeEnvelope(t, replay).Message)
}

func TestImmediateRefreshYieldsNewAccessToken(t *testing.T) {
	f := newFixture(t, nil)

	// The clock never moves, so every token below shares one iat second.
	session, cookie := f.login(t)
	seen := map[string]bool{session.AccessToken: true}
	for i := 0; i < 5; i++ {
		resp := f.post(t, "/auth/refresh", "", cookie)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var next httpapi.SessionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
		require.False(t, seen[next.AccessToken], "refresh %d reissued an earlier access token", i)
		seen[next.AccessToken] = true
		cookie = refreshCookie(t, resp)
	}
}

func TestRefreshRefusedByGateway(t *testing.T) {
	f := newFixture(t, nil)
	_, cookie := f.login(t)
	f.gateway.refuse = true

	resp := f.post(t, "/auth/refresh", "", cookie)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, resp.Header.Values("Set-Cookie"))

	env := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusUnauthorized, env.StatusCode)
	require.Equal(t, "Unauthorized", env.Error)
	require.Equal(t, "Invalid refresh token", env.Message)
}

func TestRefreshIgnoresBodyAndHeaderTokens(t *testing.T) {
	f := newFixture(t, nil)
	_, cookie := f.login(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/auth/refresh",
		strings.NewReader(`{"refreshToken":"`+cookie.Value+`"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	req.Header.Set("X-Refresh-Token", cookie.Value)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, tokenauth.MessageInvalidRefresh, decodeEnvelope(t, resp).Message)
}

func TestAutoRefreshOnExpiredAccess(t *testing.T) {
	f := newFixture(t, func(c *tokenauth.Config) { c.Access.TTL = time.Second })
	session, cookie := f.login(t)

	f.clock.Advance(1100 * time.Millisecond)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/protected", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(tokenauth.AccessTokenHeader))
	require.NotEqual(t, cookie.Value, refreshCookie(t, resp).Value)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello u1", string(body))
}

func TestAutoRefreshWithoutCookie(t *testing.T) {
	f := newFixture(t, func(c *tokenauth.Config) { c.Access.TTL = time.Second })
	session, _ := f.login(t)

	f.clock.Advance(1100 * time.Millisecond)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/protected", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, resp.Header.Get(tokenauth.AccessTokenHeader))
}

func TestLogoutRevokesEvenExpiredCookie(t *testing.T) {
	f := newFixture(t, func(c *tokenauth.Config) { c.Refresh.TTL = time.Minute })
	_, cookie := f.login(t)

	f.clock.Advance(time.Hour)

	resp := f.post(t, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body httpapi.LogoutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Signed out", body.Message)

	cleared := refreshCookie(t, resp)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	f.gateway.mu.Lock()
	defer f.gateway.mu.Unlock()
	require.Len(t, f.gateway.logouts, 1)
	require.NotEmpty(t, f.gateway.logouts[0])
}

func TestLogoutWithoutCookie(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, f.gateway.logouts)
}

func TestProtectedRouteRequiresBearer(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/api/protected")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, decodeEnvelope(t, resp).Message, "Must include a Bearer authorization.")
}

func TestCredentialFailures(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"malformed json", "/auth/login", `{"email":`, http.StatusBadRequest, httpapi.MessageInvalidBody},
		{"missing password", "/auth/signup", `{"email":"a@b.co"}`, http.StatusBadRequest, httpapi.MessageInvalidBody},
		{"signup rejected", "/auth/signup", `{"email":"taken@example.com","password":"pw-123456789"}`, http.StatusBadRequest, "Could not create user"},
		{"login error", "/auth/login", `{"email":"bad@example.com","password":"pw-123456789"}`, http.StatusUnauthorized, "Request unauthorized."},
		{"login unknown", "/auth/login", `{"email":"nobody@example.com","password":"pw-123456789"}`, http.StatusNotFound, "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.path, tt.body, nil)
			require.Equal(t, tt.status, resp.StatusCode)

			env := decodeEnvelope(t, resp)
			require.Equal(t, tt.status, env.StatusCode)
			require.Equal(t, tt.message, env.Message)
			require.Empty(t, resp.Header.Values("Set-Cookie"))
		})
	}
}

func TestSignUpIssuesSession(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.post(t, "/auth/signup", `{"email":"new@example.com","password":"pw-123456789"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var body httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "u1", body.UserID)
	require.NotEmpty(t, refreshCookie(t, resp).Value)
}

func TestCustomPrefix(t *testing.T) {
	f := newFixture(t, func(c *tokenauth.Config) { c.PathPrefix = "/v1/session" })

	resp := f.post(t, "/v1/session/logout", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.post(t, "/auth/logout", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCredentialRateLimit(t *testing.T) {
	f := newFixture(t, nil, httpapi.WithCredentialRateLimit(httpapi.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Hour,
		Burst:             2,
	}))

	for i := 0; i < 2; i++ {
		resp := f.post(t, "/auth/login", `{"email":"u1@example.com","password":"pw-123456789"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := f.post(t, "/auth/login", `{"email":"u1@example.com","password":"pw-123456789"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.Equal(t, httpapi.MessageTooManyRequests, decodeEnvelope(t, resp).Message)

	resp = f.post(t, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "logout is not throttled")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var hits atomic.Int32
	h := httpapi.RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := rec.Header().Get(httpapi.RequestIDHeader)
	require.Len(t, generated, 26)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(httpapi.RequestIDHeader, "abc")
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get(httpapi.RequestIDHeader))

	require.Equal(t, int32(2), hits.Load())
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	require.Equal(t, int64(http.StatusTeapot), entries[1].ContextMap()["status"])
	require.Equal(t, "abc", entries[1].ContextMap()["req_id"])
}

func TestClientIPIgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("X-Real-IP", "203.0.113.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	require.Equal(t, "192.168.1.1", httpapi.ClientIP(req))

	req.RemoteAddr = "not-a-host-port"
	require.Equal(t, "not-a-host-port", httpapi.ClientIP(req))
}

func TestTrustedProxies(t *testing.T) {
	resolve, err := httpapi.TrustedProxies("10.0.0.0/8", "192.168.1.1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"untrusted peer spoofs header", "198.51.100.7:4000", "203.0.113.1", "", "198.51.100.7"},
		{"single trusted hop", "10.1.2.3:4000", "203.0.113.1", "", "203.0.113.1"},
		{"trusted chain skipped from the right", "10.1.2.3:4000", "198.51.100.9, 203.0.113.1, 10.9.9.9", "", "203.0.113.1"},
		{"client prepends a fake hop", "192.168.1.1:4000", "1.2.3.4, 203.0.113.5", "", "203.0.113.5"},
		{"real ip fallback", "10.1.2.3:4000", "", "203.0.113.8", "203.0.113.8"},
		{"no headers", "10.1.2.3:4000", "", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			require.Equal(t, tt.want, resolve(req))
		})
	}

	_, err = httpapi.TrustedProxies("10.0.0.0/33")
	require.Error(t, err)
	_, err = httpapi.TrustedProxies("proxy.internal")
	require.Error(t, err)
}

func TestCredentialRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	f := newFixture(t, nil, httpapi.WithCredentialRateLimit(httpapi.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Hour,
		Burst:             1,
	}))

	login := func(xff string) int {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/auth/login", strings.NewReader(`{"email":"u1@example.com","password":"pw-123456789"}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", xff)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, login("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, login("203.0.113.2"), "a fresh header must not buy a fresh bucket")
}
