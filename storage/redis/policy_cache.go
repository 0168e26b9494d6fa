package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/gatekit/policy"
)

// PolicyCache stores the policy snapshot as one JSON value in Redis, shared
// across nodes so a policy change propagates within the TTL.
type PolicyCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewPolicyCache(rdb *redis.Client, key string, ttl time.Duration) *PolicyCache {
	if key == "" {
		key = "gatekit:policy:snapshot"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PolicyCache{rdb: rdb, key: key, ttl: ttl}
}

func (c *PolicyCache) Get(ctx context.Context) (map[string]policy.Policy, bool, error) {
	val, err := c.rdb.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap map[string]policy.Policy
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

func (c *PolicyCache) Put(ctx context.Context, policies map[string]policy.Policy) error {
	b, err := json.Marshal(policies)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key, b, c.ttl).Err()
}

func (c *PolicyCache) Del(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
