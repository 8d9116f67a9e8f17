package httpx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore shares fixed-window counters across instances, which
// is what makes the limits hold when the service runs behind a load
// balancer with no session affinity.
type RedisCounterStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client, keyPrefix: "ratelimit:"}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	k := s.keyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	count := int(incr.Val())
	remaining := ttl.Val()

	// First increment of a window, or a key that lost its expiry (PTTL
	// returns a negative duration for both), starts a fresh window.
	if count == 1 || remaining < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		remaining = window
	}

	return count, time.Now().Add(remaining), nil
}

func (s *RedisCounterStore) Decr(ctx context.Context, key string) error {
	k := s.keyPrefix + key

	// Only refund live windows; DECR on a missing key would create a
	// negative counter with no expiry.
	exists, err := s.client.Exists(ctx, k).Result()
	if err != nil || exists == 0 {
		return err
	}
	return s.client.Decr(ctx, k).Err()
}
