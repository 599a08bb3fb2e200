package eligibility

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisGate checks membership in a Redis set maintained by the external
// approval workflow. Every call hits Redis directly — no local caching —
// so revocations take effect on the next contribution.
type RedisGate struct {
	rdb *redis.Client
	key string
}

// NewRedisGate creates a gate backed by the Redis set at key.
func NewRedisGate(rdb *redis.Client, key string) *RedisGate {
	return &RedisGate{rdb: rdb, key: key}
}

func (g *RedisGate) IsEligible(ctx context.Context, participant string) (bool, error) {
	ok, err := g.rdb.SIsMember(ctx, g.key, participant).Result()
	if err != nil {
		return false, fmt.Errorf("eligibility: redis lookup for %s: %w", participant, err)
	}
	return ok, nil
}
