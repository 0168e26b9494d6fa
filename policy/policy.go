// Package policy defines the per-feature configuration record and the
// repository boundary it is loaded through.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/open-rails/gatekit/tier"
)

// ErrUnavailable is returned by repositories when the backing store cannot be
// reached. Loads fail atomically: callers never see a partial policy map.
var ErrUnavailable = errors.New("policy: store unavailable")

// Policy controls one feature's availability.
//
// The zero value is the most restrictive policy: disabled, no overrides.
// Absence of a record is not the same as a disabled record; absent features
// fall back to a default table, never to an implicit allow.
type Policy struct {
	Enabled bool       `json:"enabled"`
	MinTier tier.Level `json:"min_tier"`

	// RolloutPercentage, when set, admits roughly that share of identified
	// actors over [0,100): 100 is an unconditional pass, 0 an unconditional
	// fail absent an allowlist/beta override. Nil means no rollout gate.
	RolloutPercentage *int `json:"rollout_percentage,omitempty"`

	Allowlist []string `json:"allowlist,omitempty"`
	Denylist  []string `json:"denylist,omitempty"`
	BetaUsers []string `json:"beta_users,omitempty"`
}

// Allows reports whether id is on the allowlist.
func (p Policy) Allows(id string) bool { return containsID(p.Allowlist, id) }

// Denies reports whether id is on the denylist.
func (p Policy) Denies(id string) bool { return containsID(p.Denylist, id) }

// Beta reports whether id is enrolled as a beta user.
func (p Policy) Beta(id string) bool { return containsID(p.BetaUsers, id) }

func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Validate rejects records that would silently misbehave at evaluation time.
func (p Policy) Validate() error {
	if p.RolloutPercentage != nil {
		if v := *p.RolloutPercentage; v < 0 || v > 100 {
			return fmt.Errorf("policy: rollout percentage %d out of [0,100]", v)
		}
	}
	if p.MinTier < tier.Anonymous || p.MinTier > tier.Premium {
		return fmt.Errorf("policy: unknown min tier %d", int(p.MinTier))
	}
	return nil
}

// ValidateFeatureKey normalizes and checks a feature key: lowercase
// [a-z0-9_.-], non-empty, at most 64 bytes. Keys are opaque identifiers but
// they end up in URLs, log fields, and database rows, so the alphabet is kept
// boring on purpose.
func ValidateFeatureKey(key string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return "", errors.New("policy: empty feature key")
	}
	if len(k) > 64 {
		return "", fmt.Errorf("policy: feature key %q exceeds 64 bytes", k)
	}
	for _, r := range k {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == '-' {
			continue
		}
		return "", fmt.Errorf("policy: feature key %q contains invalid character %q", k, r)
	}
	return k, nil
}

// MergeWithDefault overlays override onto def field by field. Boolean and
// tier fields always come from override (it is a full record, not a patch);
// slice and pointer fields come from override when set, otherwise from def.
func MergeWithDefault(def, override Policy) Policy {
	out := override
	if out.RolloutPercentage == nil {
		out.RolloutPercentage = clonePct(def.RolloutPercentage)
	} else {
		out.RolloutPercentage = clonePct(out.RolloutPercentage)
	}
	if out.Allowlist == nil {
		out.Allowlist = cloneIDs(def.Allowlist)
	}
	if out.Denylist == nil {
		out.Denylist = cloneIDs(def.Denylist)
	}
	if out.BetaUsers == nil {
		out.BetaUsers = cloneIDs(def.BetaUsers)
	}
	return out
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	p.RolloutPercentage = clonePct(p.RolloutPercentage)
	p.Allowlist = cloneIDs(p.Allowlist)
	p.Denylist = cloneIDs(p.Denylist)
	p.BetaUsers = cloneIDs(p.BetaUsers)
	return p
}

func clonePct(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	return append([]string(nil), ids...)
}

// Repository loads the full policy table. Implementations must either return
// the complete map or an error wrapping ErrUnavailable; partial results are
// not a valid outcome.
type Repository interface {
	LoadPolicies(ctx context.Context) (map[string]Policy, error)
}
