package tokenauth

import (
	"net/http"
	"strings"
	"time"
)

// Config is the immutable engine configuration. Builder.Build clones it and
// validates it before any request is served.
type Config struct {
	Access  TokenConfig
	Refresh TokenConfig
	Cookie  CookieConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// AutoRefresh lets the middleware rotate an expired session from the refresh
	// cookie. Routes may override it with a RefreshPolicy.
	AutoRefresh bool
	// PathPrefix is the mount point of the auth endpoints, "/auth" by default.
	PathPrefix string
	// Environment controls environment-dependent defaults such as cookie Secure.
	Environment string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures one signing namespace.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default), "hs384", "hs512", "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig configures the refresh cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	// Secret signs the cookie value.
	Secret []byte
	// Secure is derived from Environment when nil.
	Secure   *bool
	SameSite http.SameSite
	// MaxAge defaults to Refresh.TTL when zero.
	MaxAge time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a Config with every default filled in except the secrets.
func DefaultConfig() Config {
	return Config{
		Access: TokenConfig{
			TTL:           time.Hour,
			SigningMethod: "hs256",
		},
		Refresh: TokenConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Cookie: CookieConfig{
			Name:     "refresh_token",
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		AutoRefresh: true,
		PathPrefix:  "/auth",
		Environment: "production",
	}
}

// IsDevelopment reports whether Environment names a local or test deployment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// CookieSecure resolves the effective Secure attribute of the refresh cookie.
func (c Config) CookieSecure() bool {
	if c.Cookie.Secure != nil {
		return *c.Cookie.Secure
	}
	return !c.IsDevelopment()
}

// CookieMaxAge resolves the effective Max-Age of the refresh cookie.
func (c Config) CookieMaxAge() time.Duration {
	if c.Cookie.MaxAge > 0 {
		return c.Cookie.MaxAge
	}
	return c.Refresh.TTL
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Access = cloneTokenConfig(cfg.Access)
	out.Refresh = cloneTokenConfig(cfg.Refresh)
	out.Cookie.Secret = cloneBytes(cfg.Cookie.Secret)
	if cfg.Cookie.Secure != nil {
		secure := *cfg.Cookie.Secure
		out.Cookie.Secure = &secure
	}
	return out
}

func cloneTokenConfig(cfg TokenConfig) TokenConfig {
	out := cfg
	out.Secret = cloneBytes(cfg.Secret)
	out.PrivateKey = cloneBytes(cfg.PrivateKey)
	out.PublicKey = cloneBytes(cfg.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration and returns a *ConfigError for the first
// problem found. A missing signing secret is always fatal.
func (c *Config) Validate() error {
	if err := c.Access.validate("Access"); err != nil {
		return err
	}
	if err := c.Refresh.validate("Refresh"); err != nil {
		return err
	}
	if len(c.Access.Secret) > 0 && string(c.Access.Secret) == string(c.Refresh.Secret) {
		return &ConfigError{Field: "Refresh.Secret", Reason: "must differ from Access.Secret"}
	}

	if len(c.Cookie.Secret) == 0 {
		return &ConfigError{Field: "Cookie.Secret", Reason: "is required"}
	}
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return &ConfigError{Field: "Cookie.Name", Reason: "is required"}
	}
	if !strings.HasPrefix(c.Cookie.Path, "/") {
		return &ConfigError{Field: "Cookie.Path", Reason: "must start with /"}
	}
	if c.Cookie.MaxAge < 0 {
		return &ConfigError{Field: "Cookie.MaxAge", Reason: "must be >= 0"}
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.CookieSecure() {
		return &ConfigError{Field: "Cookie.SameSite", Reason: "SameSite=None requires a Secure cookie"}
	}

	if c.PathPrefix != "" && !strings.HasPrefix(c.PathPrefix, "/") {
		return &ConfigError{Field: "PathPrefix", Reason: "must start with /"}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return &ConfigError{Field: "Audit.BufferSize", Reason: "must be > 0 when audit is enabled"}
	}

	return nil
}

func (t TokenConfig) validate(section string) error {
	if t.TTL <= 0 {
		return &ConfigError{Field: section + ".TTL", Reason: "must be > 0"}
	}
	if t.Leeway < 0 || t.Leeway > 2*time.Minute {
		return &ConfigError{Field: section + ".Leeway", Reason: "must be between 0 and 2m"}
	}

	switch strings.ToLower(t.SigningMethod) {
	case "", "hs256", "hs384", "hs512":
		if len(t.Secret) == 0 {
			return &ConfigError{Field: section + ".Secret", Reason: "is required"}
		}
	case "ed25519":
		if len(t.PrivateKey) == 0 {
			return &ConfigError{Field: section + ".PrivateKey", Reason: "is required for ed25519"}
		}
		if len(t.PublicKey) == 0 {
			return &ConfigError{Field: section + ".PublicKey", Reason: "is required for ed25519"}
		}
	default:
		return &ConfigError{Field: section + ".SigningMethod", Reason: "unsupported signing method"}
	}

	return nil
}
