// README: Redis-backed cache for routing estimates.
package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tripease/internal/types"
)

const cacheKeyPrefix = "tripease:route:"

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, origin, dest types.Point) (Estimate, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(origin, dest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Estimate{}, false, nil
	}
	if err != nil {
		return Estimate{}, false, err
	}
	var est Estimate
	if err := json.Unmarshal(raw, &est); err != nil {
		return Estimate{}, false, fmt.Errorf("decode cached route: %w", err)
	}
	return est, true, nil
}

func (c *RedisCache) Set(ctx context.Context, origin, dest types.Point, e Estimate, ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(origin, dest), raw, ttl).Err()
}

// cacheKey buckets coordinates to ~1 m.
func cacheKey(origin, dest types.Point) string {
	return fmt.Sprintf("%s%.5f,%.5f;%.5f,%.5f", cacheKeyPrefix, origin.Lat, origin.Lng, dest.Lat, dest.Lng)
}
