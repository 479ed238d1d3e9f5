package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
	"go.uber.org/zap"
)

// Option configures Mount.
type Option func(*options)

type options struct {
	prefix   string
	logger   *zap.Logger
	limit    *RateLimitConfig
	keyFunc  KeyExtractor
	clientIP KeyExtractor
}

// WithPrefix overrides the engine's configured path prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithLogger sets the logger for handler failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCredentialRateLimit throttles signup and login per client IP.
func WithCredentialRateLimit(cfg RateLimitConfig) Option {
	return func(o *options) { o.limit = &cfg }
}

// WithKeyExtractor changes how rate limit buckets are keyed. The default is the
// client IP resolver.
func WithKeyExtractor(fn KeyExtractor) Option {
	return func(o *options) { o.keyFunc = fn }
}

// WithClientIPResolver sets how the client address recorded on the request
// context is found. The default is ClientIP. Use TrustedProxies behind a proxy.
func WithClientIPResolver(fn KeyExtractor) Option {
	return func(o *options) { o.clientIP = fn }
}

// Mount registers the auth endpoints of engine on mux.
func Mount(mux *http.ServeMux, engine *tokenauth.Engine, opts ...Option) {
	o := options{
		prefix: engine.Config().PathPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clientIP == nil {
		o.clientIP = ClientIP
	}
	if o.keyFunc == nil {
		o.keyFunc = o.clientIP
	}
	prefix := "/" + strings.Trim(o.prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	h := &handlers{engine: engine, logger: o.logger.Named("httpapi"), clientIP: o.clientIP}

	credential := func(next http.HandlerFunc) http.Handler { return next }
	if o.limit != nil {
		limit := RateLimit(*o.limit, o.keyFunc, o.logger)
		credential = func(next http.HandlerFunc) http.Handler { return limit(next) }
	}

	mux.Handle("POST "+prefix+"/signup", credential(h.signUp))
	mux.Handle("POST "+prefix+"/login", credential(h.login))
	mux.HandleFunc("POST "+prefix+"/refresh", h.refresh)
	mux.HandleFunc("POST "+prefix+"/logout", h.logout)
}
