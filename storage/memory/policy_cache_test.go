package memorystore

import (
	"context"
	"testing"
	"time"

	"github.com/open-rails/gatekit/policy"
)

func TestPolicyCacheRoundTrip(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	snap := map[string]policy.Policy{"f": {Enabled: true}}
	if err := c.Put(ctx, snap); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if !got["f"].Enabled {
		t.Error("snapshot lost")
	}
}

func TestPolicyCacheExpiry(t *testing.T) {
	c := NewPolicyCache(10 * time.Millisecond)
	ctx := context.Background()
	if err := c.Put(ctx, map[string]policy.Policy{"f": {}}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := c.Get(ctx); ok {
		t.Error("expired snapshot served")
	}
}

func TestPolicyCacheDel(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	ctx := context.Background()
	_ = c.Put(ctx, map[string]policy.Policy{"f": {}})
	if err := c.Del(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx); ok {
		t.Error("deleted snapshot served")
	}
}

func TestPolicyCacheDoesNotAliasCaller(t *testing.T) {
	c := NewPolicyCache(time.Minute)
	ctx := context.Background()
	snap := map[string]policy.Policy{"f": {Enabled: true, Allowlist: []string{"a"}}}
	_ = c.Put(ctx, snap)

	// Mutating the caller's map or the returned map must not leak into the
	// cached snapshot.
	snap["f"] = policy.Policy{}
	got, _, _ := c.Get(ctx)
	if !got["f"].Enabled {
		t.Fatal("cache aliases the caller's map")
	}
	got["f"].Allowlist[0] = "mutated"
	again, _, _ := c.Get(ctx)
	if again["f"].Allowlist[0] != "a" {
		t.Error("cache returns shared slices across gets")
	}
}
