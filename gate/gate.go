// Package gate evaluates one feature policy against one actor and returns an
// allow/deny verdict with a machine-readable reason.
//
// Evaluation is a fixed-order precedence chain, not a rule engine: kill
// switch, then denylist, then allowlist/beta overrides, then tier, then
// subscription liveness, then rollout. Each step either settles the verdict
// or falls through to the next.
package gate

import (
	"github.com/open-rails/gatekit/policy"
	"github.com/open-rails/gatekit/rollout"
	"github.com/open-rails/gatekit/tier"
)

// Reason is a machine-readable deny code. All reasons describe a correctly
// functioning deny, never an internal fault.
type Reason string

const (
	ReasonFeatureDisabled      Reason = "feature_disabled"
	ReasonDenylisted           Reason = "denylisted"
	ReasonTierRestriction      Reason = "tier_restriction"
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonNoActiveSubscription Reason = "no_active_subscription"
	ReasonRolloutNotEligible   Reason = "rollout_not_eligible"
)

// ActorContext is the resolved caller identity an evaluation runs against.
// An empty ID marks an anonymous actor; anonymous actors never match
// allowlist, denylist, beta, or rollout checks, since those need a stable
// identity.
type ActorContext struct {
	ID                    string     `json:"id,omitempty"`
	Tier                  tier.Level `json:"tier"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
}

// Anonymous reports whether the actor has no stable identity.
func (a ActorContext) Anonymous() bool { return a.ID == "" }

// Verdict is the outcome of one (feature, actor) evaluation. Reason is set
// exactly when Allowed is false.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Verdict { return Verdict{Allowed: true} }

func deny(r Reason) Verdict { return Verdict{Allowed: false, Reason: r} }

// Evaluate runs the precedence chain for featureKey. It is pure: no I/O, no
// mutation of its inputs, safe for concurrent use.
func Evaluate(featureKey string, p policy.Policy, actor ActorContext) Verdict {
	// Kill switch. Nothing bypasses it, not even the allowlist.
	if !p.Enabled {
		return deny(ReasonFeatureDisabled)
	}

	// Denylist outranks allowlist and beta.
	if !actor.Anonymous() && p.Denies(actor.ID) {
		return deny(ReasonDenylisted)
	}

	// Explicit overrides skip tier, subscription, and rollout entirely.
	if !actor.Anonymous() && (p.Allows(actor.ID) || p.Beta(actor.ID)) {
		return allow()
	}

	// Tier gate. The unauthenticated/tier_restriction split lets the
	// transport layer choose 401 vs 403 without re-deriving it.
	if !actor.Tier.AtLeast(p.MinTier) {
		if actor.Anonymous() && p.MinTier >= tier.Free {
			return deny(ReasonUnauthenticated)
		}
		return deny(ReasonTierRestriction)
	}

	// Premium features also need a live subscription: the nominal tier can
	// come from stale billing data after a lapse.
	if p.MinTier == tier.Premium && !actor.HasActiveSubscription {
		return deny(ReasonNoActiveSubscription)
	}

	// Percentage rollout applies only to identified actors; anonymous
	// traffic cannot be gradually rolled out and passes through.
	if !actor.Anonymous() && p.RolloutPercentage != nil && *p.RolloutPercentage < 100 {
		if rollout.Bucket(actor.ID, featureKey) >= *p.RolloutPercentage {
			return deny(ReasonRolloutNotEligible)
		}
	}

	return allow()
}
