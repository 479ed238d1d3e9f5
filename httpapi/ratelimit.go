package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tokenauth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MessageTooManyRequests is the public message of a throttled request.
const MessageTooManyRequests = "Too many requests. Please try again later."

// RateLimitConfig is a token bucket per key.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// DefaultCredentialLimit allows five signup or login attempts per minute per IP.
var DefaultCredentialLimit = RateLimitConfig{
	RequestsPerWindow: 5,
	Window:            time.Minute,
	Burst:             5,
}

// KeyExtractor picks the bucket for a request. An empty key bypasses the limit.
type KeyExtractor func(*http.Request) string

// ClientIP is the peer address of the connection. Forwarding headers are
// ignored because any client can set them; see TrustedProxies.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// TrustedProxies returns a resolver that believes X-Forwarded-For and X-Real-IP
// only when the peer is inside one of cidrs. The forwarded chain is walked from
// the right and the first hop outside cidrs is the client.
func TrustedProxies(cidrs ...string) (KeyExtractor, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, "/") {
			addr, err := netip.ParseAddr(c)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", c, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", c, err)
		}
		prefixes = append(prefixes, p.Masked())
	}

	trusted := func(ip string) bool {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		peer := ClientIP(r)
		if !trusted(peer) {
			return peer
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop != "" && !trusted(hop) {
					return hop
				}
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}, nil
}

type limiterSet struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (s *limiterSet) get(key string) *rate.Limiter {
	if l, ok := s.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := s.limiters.LoadOrStore(key, rate.NewLimiter(s.limit, s.burst))
	s.maybeCleanup()
	return actual.(*rate.Limiter)
}

// Idle limiters have refilled their whole bucket.
func (s *limiterSet) maybeCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastCleanup) < 5*time.Minute {
		return
	}
	s.lastCleanup = time.Now()

	s.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(s.burst) {
			s.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit rejects requests over cfg with 429 and the error envelope.
func RateLimit(cfg RateLimitConfig, key KeyExtractor, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
		cfg = DefaultCredentialLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerWindow
	}
	if key == nil {
		key = ClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	set := &limiterSet{
		limit:       rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := set.get(k)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				retryAfter := max(int(reservation.Delay().Seconds()), 1)
				reservation.Cancel()

				logger.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", r.URL.Path), zap.Int("retry_after", retryAfter))

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				tokenauth.WriteError(w, &tokenauth.AuthError{
					Status:  http.StatusTooManyRequests,
					Message: MessageTooManyRequests,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
