package tokenauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/cookie"
	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/jwt"
	"go.uber.org/zap"
)

// Builder assembles an Engine. It is single-use: Build may succeed at most once.
type Builder struct {
	config Config

	provider  IdentityProvider
	gateway   RevocationGateway
	throttle  LoginThrottle
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider sets the collaborator used by SignUp and Login.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithRevocationGateway sets the authority consulted on every rotation and logout.
func (b *Builder) WithRevocationGateway(g RevocationGateway) *Builder {
	b.gateway = g
	return b
}

// WithLoginThrottle sets the failed-login budget consulted by Login.
func (b *Builder) WithLoginThrottle(t LoginThrottle) *Builder {
	b.throttle = t
	return b
}

// WithAuditSink sets the sink receiving audit events. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for internal causes that are never returned to
// clients. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used to stamp and verify tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the access verification latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. Any *ConfigError
// returned here must abort startup.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.gateway == nil {
		return nil, &ConfigError{Field: "RevocationGateway", Reason: "is required"}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(signerConfig(cfg.Access, now), signerConfig(cfg.Refresh, now))
	if err != nil {
		return nil, &ConfigError{Field: "Access/Refresh", Reason: err.Error()}
	}

	cookies, err := cookie.New(cookie.Config{
		Name:     cfg.Cookie.Name,
		Path:     cfg.Cookie.Path,
		Domain:   cfg.Cookie.Domain,
		Secret:   cloneBytes(cfg.Cookie.Secret),
		Secure:   cfg.CookieSecure(),
		SameSite: cfg.Cookie.SameSite,
		MaxAge:   cfg.CookieMaxAge(),
	})
	if err != nil {
		return nil, &ConfigError{Field: "Cookie", Reason: err.Error()}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.Named("tokenauth")
	engine := &Engine{
		config:   cloneConfig(cfg),
		codec:    codec,
		cookies:  cookies,
		provider: b.provider,
		gateway:  b.gateway,
		throttle: b.throttle,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
			OnDrop: func(ev AuditEvent) {
				logger.Warn("audit event dropped", zap.String("type", ev.Type), zap.String("user_id", ev.UserID))
			},
		}, b.auditSink),
	}
	engine.flows = engine.buildFlowService()

	b.built = true

	return engine, nil
}

func signerConfig(t TokenConfig, now func() time.Time) jwt.Config {
	method := strings.ToLower(t.SigningMethod)
	if method == "" {
		method = string(jwt.MethodHS256)
	}
	return jwt.Config{
		TTL:           t.TTL,
		SigningMethod: jwt.SigningMethod(method),
		Secret:        cloneBytes(t.Secret),
		PrivateKey:    cloneBytes(t.PrivateKey),
		PublicKey:     cloneBytes(t.PublicKey),
		Issuer:        t.Issuer,
		Leeway:        t.Leeway,
		Now:           now,
	}
}
