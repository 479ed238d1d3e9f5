package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshStatusRefused  int64 = 0
	refreshStatusConsumed int64 = 1
)

// KEYS[1] revoked marker, KEYS[2] consumed marker, ARGV[1] retention in ms.
const refreshJTIScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local set = redis.call("SET", KEYS[2], "1", "NX", "PX", ARGV[1])
if set then
  return 1
end
return 0
`

var refreshJTILua = redis.NewScript(refreshJTIScript)

// Redis is a RevocationGateway backed by Redis. Markers expire after the
// configured retention, which should be at least the refresh token TTL.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedis returns a Redis gateway. An empty prefix defaults to "tokenauth" and a
// non-positive retention defaults to seven days.
func NewRedis(client redis.UniversalClient, prefix string, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = "tokenauth"
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Redis{client: client, prefix: prefix, retention: retention}
}

// Keys share a hash tag so the script stays on one cluster slot.
func (r *Redis) revokedKey(jti string) string {
	return r.prefix + ":jti:{" + jti + "}:revoked"
}

func (r *Redis) consumedKey(jti string) string {
	return r.prefix + ":jti:{" + jti + "}:consumed"
}

// Refresh consumes jti. It answers true exactly once per jti and never for a
// jti recorded by Logout.
func (r *Redis) Refresh(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyJTI
	}

	status, err := refreshJTILua.Run(
		ctx,
		r.client,
		[]string{r.revokedKey(jti), r.consumedKey(jti)},
		r.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return status == refreshStatusConsumed, nil
}

// Logout records jti as revoked. It is idempotent.
func (r *Redis) Logout(ctx context.Context, jti string) error {
	if jti == "" {
		return ErrEmptyJTI
	}
	if err := r.client.Set(ctx, r.revokedKey(jti), "1", r.retention).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Revoked reports whether jti was recorded by Logout.
func (r *Redis) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
