package policy

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SnapshotCache holds one snapshot of the full policy table. Implementations
// live in storage/memory and storage/redis.
type SnapshotCache interface {
	Get(ctx context.Context) (map[string]Policy, bool, error)
	Put(ctx context.Context, policies map[string]Policy) error
	Del(ctx context.Context) error
}

// StaticRepository serves a fixed in-memory table. Useful for tests and for
// deployments whose policies ship with the binary.
type StaticRepository struct {
	policies map[string]Policy
}

// NewStaticRepository copies the given table. A nil table yields an empty one.
func NewStaticRepository(policies map[string]Policy) *StaticRepository {
	out := make(map[string]Policy, len(policies))
	for k, v := range policies {
		out[k] = v.Clone()
	}
	return &StaticRepository{policies: out}
}

func (r *StaticRepository) LoadPolicies(_ context.Context) (map[string]Policy, error) {
	out := make(map[string]Policy, len(r.policies))
	for k, v := range r.policies {
		out[k] = v.Clone()
	}
	return out, nil
}

// CachedRepository serves loads from a snapshot cache, falling through to the
// source on a miss and refreshing the cache best-effort. A cache fault is
// never fatal; only a source fault after a miss surfaces to the caller.
type CachedRepository struct {
	source Repository
	cache  SnapshotCache
	log    *logrus.Logger
}

func NewCachedRepository(source Repository, cache SnapshotCache, log *logrus.Logger) *CachedRepository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedRepository{source: source, cache: cache, log: log}
}

func (r *CachedRepository) LoadPolicies(ctx context.Context) (map[string]Policy, error) {
	if r.cache != nil {
		snap, ok, err := r.cache.Get(ctx)
		if err != nil {
			r.log.WithError(err).Warn("policy: snapshot cache read failed")
		} else if ok {
			return snap, nil
		}
	}
	policies, err := r.source.LoadPolicies(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, policies); err != nil {
			r.log.WithError(err).Warn("policy: snapshot cache write failed")
		}
	}
	return policies, nil
}

// Invalidate drops the cached snapshot so the next load hits the source.
func (r *CachedRepository) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx)
}
