// README: Idempotency guard for partner submissions keyed by (source system, external id).
package partner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard serialises concurrent submissions of the same partner booking. The
// database unique index remains the durable check.
type Guard interface {
	Claim(ctx context.Context, sourceSystem string, externalID int64) (bool, error)
	Release(ctx context.Context, sourceSystem string, externalID int64) error
}

type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, sourceSystem string, externalID int64) (bool, error) {
	return g.rdb.SetNX(ctx, claimKey(sourceSystem, externalID), time.Now().Unix(), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, sourceSystem string, externalID int64) error {
	return g.rdb.Del(ctx, claimKey(sourceSystem, externalID)).Err()
}

func claimKey(sourceSystem string, externalID int64) string {
	return fmt.Sprintf("tripease:partner:claim:%s:%d", sourceSystem, externalID)
}

const localSweepSize = 1024

// LocalGuard is the single-process Guard used without Redis.
type LocalGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time
	now    func() time.Time
}

func NewLocalGuard(ttl time.Duration) *LocalGuard {
	return &LocalGuard{ttl: ttl, claims: make(map[string]time.Time), now: time.Now}
}

func (g *LocalGuard) Claim(_ context.Context, sourceSystem string, externalID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := claimKey(sourceSystem, externalID)
	now := g.now()
	if len(g.claims) >= localSweepSize {
		for k, exp := range g.claims {
			if !now.Before(exp) {
				delete(g.claims, k)
			}
		}
	}
	if exp, ok := g.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.claims[key] = now.Add(g.ttl)
	return true, nil
}

func (g *LocalGuard) Release(_ context.Context, sourceSystem string, externalID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, claimKey(sourceSystem, externalID))
	return nil
}
