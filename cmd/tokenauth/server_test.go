package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	setSecrets(t)
	t.Setenv("ENV", "test")
	t.Setenv("GATEWAY", gatewayMemory)
	t.Setenv("LOGIN_RATE_LIMIT", "0")

	s, err := loadSettings(newViper())
	require.NoError(t, err)

	gw, err := openGateway(context.Background(), s, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(gw.close)

	provider, err := newIdentityProvider(s)
	require.NoError(t, err)

	engine, err := tokenauth.New().
		WithConfig(s.engineConfig()).
		WithIdentityProvider(provider).
		WithRevocationGateway(gw.gateway).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(newHandler(engine, s, gw.ping, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestServerVersionRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "1", body["version"])
	assert.NotEmpty(t, resp.Header.Get(httpapi.RequestIDHeader))
}

func TestServerProtectedRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auth/signup", "application/json",
		strings.NewReader(`{"email":"ada@example.com","password":"correct-horse-battery"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session httpapi.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/protected", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	protected, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer protected.Body.Close()
	require.Equal(t, http.StatusOK, protected.StatusCode)

	text, err := io.ReadAll(protected.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello "+session.UserID, string(text))

	anonymous, err := http.Get(srv.URL + "/api/protected")
	require.NoError(t, err)
	defer anonymous.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, anonymous.StatusCode)
}

func TestServerMetricsRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "tokenauth_issue_success_total 0")
}

func TestServerHealthRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServerHealthRouteGatewayDown(t *testing.T) {
	setSecrets(t)
	t.Setenv("ENV", "test")
	t.Setenv("GATEWAY", gatewaySQLite)
	t.Setenv("DATABASE_FILE", filepath.Join(t.TempDir(), "revocations.db"))

	s, err := loadSettings(newViper())
	require.NoError(t, err)
	gw, err := openGateway(context.Background(), s, zap.NewNop())
	require.NoError(t, err)

	provider, err := newIdentityProvider(s)
	require.NoError(t, err)
	engine, err := tokenauth.New().
		WithConfig(s.engineConfig()).
		WithIdentityProvider(provider).
		WithRevocationGateway(gw.gateway).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	core, logs := observer.New(zap.WarnLevel)
	srv := httptest.NewServer(newHandler(engine, s, gw.ping, zap.New(core)))
	t.Cleanup(srv.Close)

	up, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = up.Body.Close()
	require.Equal(t, http.StatusOK, up.StatusCode)

	gw.close()

	down, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer down.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, down.StatusCode)

	var env tokenauth.ErrorEnvelope
	require.NoError(t, json.NewDecoder(down.Body).Decode(&env))
	assert.Equal(t, http.StatusServiceUnavailable, env.StatusCode)
	assert.Equal(t, "Revocation gateway unavailable", env.Message)
	assert.Equal(t, 1, logs.FilterMessage("health check failed").Len())
}

func TestServerTrustedProxiesRecordClientIP(t *testing.T) {
	setSecrets(t)
	t.Setenv("GATEWAY", gatewayMemory)
	t.Setenv("LOGIN_RATE_LIMIT", "0")
	t.Setenv("ENV", "test")
	t.Setenv("TRUSTED_PROXIES", "127.0.0.1/32, ::1")

	s, err := loadSettings(newViper())
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1/32", "::1"}, s.TrustedProxies)

	gw, err := openGateway(context.Background(), s, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(gw.close)
	provider, err := newIdentityProvider(s)
	require.NoError(t, err)

	sink := tokenauth.NewChannelSink(4)
	cfg := s.engineConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 4
	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithIdentityProvider(provider).
		WithRevocationGateway(gw.gateway).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv := httptest.NewServer(newHandler(engine, s, gw.ping, zap.NewNop()))
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"whatever-password"}`))
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	ev := <-sink.Events()
	assert.Equal(t, "203.0.113.50", ev.IP)
}
