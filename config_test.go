package tokenauth

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	insecure := false

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "leeway within range", mutate: func(c *Config) { c.Access.Leeway = 45 * time.Second }},
		{name: "leeway too large", mutate: func(c *Config) { c.Access.Leeway = 3 * time.Minute }, wantField: "Access.Leeway"},
		{name: "access ttl zero", mutate: func(c *Config) { c.Access.TTL = 0 }, wantField: "Access.TTL"},
		{name: "refresh ttl negative", mutate: func(c *Config) { c.Refresh.TTL = -time.Second }, wantField: "Refresh.TTL"},
		{name: "missing access secret", mutate: func(c *Config) { c.Access.Secret = nil }, wantField: "Access.Secret"},
		{name: "missing refresh secret", mutate: func(c *Config) { c.Refresh.Secret = nil }, wantField: "Refresh.Secret"},
		{name: "shared secret", mutate: func(c *Config) { c.Refresh.Secret = c.Access.Secret }, wantField: "Refresh.Secret"},
		{name: "unsupported method", mutate: func(c *Config) { c.Access.SigningMethod = "rs256" }, wantField: "Access.SigningMethod"},
		{name: "ed25519 without keys", mutate: func(c *Config) { c.Refresh.SigningMethod = "ed25519" }, wantField: "Refresh.PrivateKey"},
		{name: "missing cookie secret", mutate: func(c *Config) { c.Cookie.Secret = nil }, wantField: "Cookie.Secret"},
		{name: "blank cookie name", mutate: func(c *Config) { c.Cookie.Name = "  " }, wantField: "Cookie.Name"},
		{name: "relative cookie path", mutate: func(c *Config) { c.Cookie.Path = "auth" }, wantField: "Cookie.Path"},
		{name: "negative cookie max age", mutate: func(c *Config) { c.Cookie.MaxAge = -time.Second }, wantField: "Cookie.MaxAge"},
		{name: "samesite none without secure", mutate: func(c *Config) {
			c.Cookie.SameSite = http.SameSiteNoneMode
			c.Cookie.Secure = &insecure
		}, wantField: "Cookie.SameSite"},
		{name: "relative prefix", mutate: func(c *Config) { c.PathPrefix = "auth" }, wantField: "PathPrefix"},
		{name: "audit without buffer", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, wantField: "Audit.BufferSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Fatalf("expected field %s, got %s (%s)", tt.wantField, cfgErr.Field, cfgErr.Reason)
			}
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("config errors must match ErrConfig")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Access.TTL != time.Hour || cfg.Refresh.TTL != 7*24*time.Hour {
		t.Fatalf("unexpected default TTLs %v/%v", cfg.Access.TTL, cfg.Refresh.TTL)
	}
	if cfg.Cookie.Name != "refresh_token" || cfg.Cookie.Path != "/" || cfg.Cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie defaults %+v", cfg.Cookie)
	}
	if !cfg.AutoRefresh || cfg.PathPrefix != "/auth" {
		t.Fatalf("unexpected route defaults")
	}
	if !cfg.CookieSecure() {
		t.Fatalf("production default must use Secure cookies")
	}
	if cfg.CookieMaxAge() != cfg.Refresh.TTL {
		t.Fatalf("cookie max-age must default to the refresh TTL")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("default config without secrets must not validate")
	}
}

func TestCookieSecureByEnvironment(t *testing.T) {
	for env, want := range map[string]bool{
		"production":  true,
		"staging":     true,
		"development": false,
		"dev":         false,
		"Test":        false,
		"local":       false,
	} {
		cfg := DefaultConfig()
		cfg.Environment = env
		if got := cfg.CookieSecure(); got != want {
			t.Fatalf("env %q: expected secure=%v, got %v", env, want, got)
		}
	}

	cfg := DefaultConfig()
	cfg.Environment = "development"
	secure := true
	cfg.Cookie.Secure = &secure
	if !cfg.CookieSecure() {
		t.Fatalf("explicit Secure must override the environment")
	}
}

func TestBuildConfigImmutableAgainstExternalMutation(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, func(c *Config) { *c = cfg })

	cfg.Access.Secret[0] = 'X'
	cfg.Cookie.Secret[0] = 'X'

	got := e.Config()
	if got.Access.Secret[0] == 'X' || got.Cookie.Secret[0] == 'X' {
		t.Fatalf("engine config must not alias caller slices")
	}

	got.Refresh.Secret[0] = 'Y'
	if e.Config().Refresh.Secret[0] == 'Y' {
		t.Fatalf("Config() must return a copy")
	}
}
