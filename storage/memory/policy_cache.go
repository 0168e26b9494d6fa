package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/open-rails/gatekit/policy"
)

// PolicyCache is an in-memory implementation of policy.SnapshotCache with
// TTL. It is intended as a single-node fallback when Redis is unavailable.
type PolicyCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	snap map[string]policy.Policy
	exp  time.Time
}

// NewPolicyCache creates an in-memory snapshot cache. If ttl <= 0, a default
// of 1 minute is used.
func NewPolicyCache(ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PolicyCache{ttl: ttl}
}

func (c *PolicyCache) Get(ctx context.Context) (map[string]policy.Policy, bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil || time.Now().After(c.exp) {
		c.snap = nil
		return nil, false, nil
	}
	return clone(c.snap), true, nil
}

func (c *PolicyCache) Put(ctx context.Context, policies map[string]policy.Policy) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = clone(policies)
	c.exp = time.Now().Add(c.ttl)
	return nil
}

func (c *PolicyCache) Del(ctx context.Context) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	return nil
}

func clone(in map[string]policy.Policy) map[string]policy.Policy {
	out := make(map[string]policy.Policy, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
