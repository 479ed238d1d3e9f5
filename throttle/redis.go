package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis failure.
var ErrUnavailable = errors.New("throttle store unavailable")

// Config holds the failed-login budget.
type Config struct {
	// MaxAttempts is the number of failures tolerated per window.
	MaxAttempts int
	// Window is the lifetime of a counter after its first failure.
	Window time.Duration
	// PerIP also budgets failures per client IP across identifiers.
	PerIP bool
	// Prefix namespaces the Redis keys, "tokenauth" by default.
	Prefix string
}

// DefaultConfig allows five failures per identifier or IP every fifteen minutes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
		PerIP:       true,
		Prefix:      "tokenauth",
	}
}

// Redis enforces Config with INCR/EXPIRE counters.
type Redis struct {
	client redis.UniversalClient
	config Config
}

// NewRedis returns a Redis throttle. Zero fields of cfg take DefaultConfig values.
func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return &Redis{client: client, config: cfg}
}

func (r *Redis) identifierKey(identifier string) string {
	return r.config.Prefix + ":login:id:" + strings.ToLower(strings.TrimSpace(identifier))
}

func (r *Redis) ipKey(ip string) string {
	return r.config.Prefix + ":login:ip:" + ip
}

func (r *Redis) keys(identifier, ip string) []string {
	keys := []string{r.identifierKey(identifier)}
	if r.config.PerIP && ip != "" {
		keys = append(keys, r.ipKey(ip))
	}
	return keys
}

// Allow reports whether another attempt fits the budget of identifier and ip.
func (r *Redis) Allow(ctx context.Context, identifier, ip string) (bool, error) {
	for _, key := range r.keys(identifier, ip) {
		count, err := r.client.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if count >= int64(r.config.MaxAttempts) {
			return false, nil
		}
	}
	return true, nil
}

// Failure records a failed attempt.
func (r *Redis) Failure(ctx context.Context, identifier, ip string) error {
	for _, key := range r.keys(identifier, ip) {
		if _, err := r.incrementWithTTL(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the identifier counter after a successful login.
func (r *Redis) Reset(ctx context.Context, identifier, _ string) error {
	if err := r.client.Del(ctx, r.identifierKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the failures recorded for identifier in the current window.
func (r *Redis) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := r.client.Get(ctx, r.identifierKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return int(count), nil
}

func (r *Redis) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Fixed window: only the first hit sets the TTL.
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return count, nil
}
