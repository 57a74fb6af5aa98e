package throttle

import (
	"context"
	"time"

	"github.com/go-redis/redis"
	tredis "github.com/remind101/pagecrypt/tracing/redis"
)

// Redis is a limiter shared between processes. Each key is a counter that
// expires Window after its first failure.
type Redis struct {
	Limit  int64
	Window time.Duration

	// Prefix namespaces the keys.
	Prefix string

	client *redis.Client
}

// NewRedis returns a Redis limiter with default settings.
func NewRedis(c *redis.Client) *Redis {
	return &Redis{
		Limit:  DefaultLimit,
		Window: DefaultWindow,
		Prefix: "pagecrypt:acode:",
		client: c,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := tredis.WrapClient(ctx, r.client, "pagecrypt-throttle").Get(r.Prefix + key).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n < r.Limit, nil
}

// Fail increments the counter and starts its expiry on the first failure.
func (r *Redis) Fail(ctx context.Context, key string) error {
	c := tredis.WrapClient(ctx, r.client, "pagecrypt-throttle")
	k := r.Prefix + key

	n, err := c.Incr(k).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return c.Expire(k, r.Window).Err()
	}
	return nil
}
