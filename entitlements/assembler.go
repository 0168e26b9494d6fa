// Package entitlements assembles a complete, serializable entitlement
// snapshot for the current actor, degrading to the least-privileged outcome
// on any collaborator failure.
package entitlements

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/gatekit/audit"
	"github.com/open-rails/gatekit/gate"
	"github.com/open-rails/gatekit/identity"
	"github.com/open-rails/gatekit/policy"
	"github.com/open-rails/gatekit/tier"
)

// Assembler orchestrates identity resolution, policy loading, and per-feature
// evaluation. Its one promise is that Assemble always returns a complete
// context and never panics or errors: every failure path has a fail-closed
// default.
type Assembler struct {
	policies policy.Repository
	provider identity.Provider
	auditor  audit.Logger
	defaults map[string]policy.Policy
	refFn    func(string) string
	log      *logrus.Logger
	now      func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithAuditLogger sets the verdict/fault sink. Defaults to a no-op.
func WithAuditLogger(l audit.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.auditor = l
		}
	}
}

// WithDefaults replaces the builtin fallback policy table used when the
// policy load fails.
func WithDefaults(defaults map[string]policy.Policy) Option {
	return func(a *Assembler) {
		if len(defaults) > 0 {
			a.defaults = defaults
		}
	}
}

// WithPseudonymizer records pseudonymous actor references in audit events
// instead of raw actor IDs.
func WithPseudonymizer(p *audit.Pseudonymizer) Option {
	return func(a *Assembler) {
		if p != nil {
			a.refFn = p.Ref
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *logrus.Logger) Option {
	return func(a *Assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAssembler builds an assembler over the two collaborator boundaries.
func NewAssembler(policies policy.Repository, provider identity.Provider, opts ...Option) *Assembler {
	a := &Assembler{
		policies: policies,
		provider: provider,
		auditor:  audit.NopLogger{},
		defaults: policy.DefaultTable(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	a.refFn = func(id string) string {
		if id == "" {
			return audit.AnonymousRef
		}
		return id
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble resolves the current actor and evaluates every known feature.
// It never returns an error:
//   - no authenticated actor: anonymous context over the loaded policies;
//   - billing/tier gaps: free tier (handled by the identity provider and
//     tier mapping, never premium by accident);
//   - policy load failure: the fallback policy table;
//   - a panic anywhere in assembly: the most restrictive context possible.
func (a *Assembler) Assemble(ctx context.Context) (out Context) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", fmt.Sprint(r)).Error("entitlements: assembly panicked, returning restricted context")
			a.recordFault(ctx, audit.FaultAssemblyPanic, audit.SeverityError, fmt.Sprint(r))
			out = a.restricted()
		}
	}()

	actor, policies := a.fetch(ctx)

	act := gate.ActorContext{Tier: tier.Anonymous}
	if actor != nil {
		act = gate.ActorContext{
			ID:                    actor.ID,
			Tier:                  tier.FromRawLogger(actor.RawTier, a.log),
			HasActiveSubscription: actor.SubscriptionActive,
		}
	}

	return a.build(ctx, act, policies)
}

// fetch runs the two collaborator calls concurrently. Neither depends on the
// other, so there is no ordering constraint; both failures are converted to
// their fail-closed defaults here.
func (a *Assembler) fetch(ctx context.Context) (*identity.Actor, map[string]policy.Policy) {
	var (
		wg       sync.WaitGroup
		actor    *identity.Actor
		actorErr error
		policies map[string]policy.Policy
		polErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverInto(&actorErr)
		actor, actorErr = a.provider.CurrentActor(ctx)
	}()
	go func() {
		defer wg.Done()
		defer recoverInto(&polErr)
		policies, polErr = a.policies.LoadPolicies(ctx)
	}()
	wg.Wait()

	if actorErr != nil {
		a.log.WithError(actorErr).Error("entitlements: identity lookup failed, assembling anonymous context")
		a.recordFault(ctx, audit.FaultIdentityLoadFailed, audit.SeverityError, actorErr.Error())
		actor = nil
	}
	if polErr != nil {
		a.log.WithError(polErr).Error("entitlements: policy load failed, using fallback table")
		a.recordFault(ctx, audit.FaultPolicyLoadFailed, audit.SeverityError, polErr.Error())
		policies = nil
	}
	if policies == nil {
		policies = a.defaults
	}
	return actor, policies
}

// build evaluates every feature in the table and records each verdict.
func (a *Assembler) build(ctx context.Context, act gate.ActorContext, policies map[string]policy.Policy) Context {
	// Features present only in the default table are still known features;
	// a store that has no record for them must not make them vanish from
	// the map.
	for key, p := range a.defaults {
		if _, ok := policies[key]; !ok {
			policies[key] = p
		}
	}

	features := make(map[string]bool, len(policies))
	ref := a.refFn(act.ID)
	at := a.now()
	for key, p := range policies {
		v := gate.Evaluate(key, p, act)
		features[key] = v.Allowed
		_ = a.auditor.RecordVerdict(ctx, audit.VerdictEvent{
			FeatureKey: key,
			ActorRef:   ref,
			Allowed:    v.Allowed,
			Reason:     string(v.Reason),
			At:         at,
		})
	}
	return Context{
		ActorID:               act.ID,
		Anonymous:             act.Anonymous(),
		Tier:                  act.Tier,
		HasActiveSubscription: act.HasActiveSubscription,
		Features:              features,
		GeneratedAt:           at,
	}
}

// Check resolves the actor and evaluates one feature, preserving the full
// verdict so transports can map deny reasons to status codes. Like Assemble,
// it never panics: a failure inside assembly evaluates the feature's fallback
// policy for an anonymous actor.
func (a *Assembler) Check(ctx context.Context, featureKey string) (v gate.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", fmt.Sprint(r)).Error("entitlements: check panicked, evaluating restricted fallback")
			a.recordFault(ctx, audit.FaultAssemblyPanic, audit.SeverityError, fmt.Sprint(r))
			v = gate.Evaluate(featureKey, a.fallbackPolicy(featureKey), gate.ActorContext{Tier: tier.Anonymous})
		}
	}()

	actor, policies := a.fetch(ctx)

	act := gate.ActorContext{Tier: tier.Anonymous}
	if actor != nil {
		act = gate.ActorContext{
			ID:                    actor.ID,
			Tier:                  tier.FromRawLogger(actor.RawTier, a.log),
			HasActiveSubscription: actor.SubscriptionActive,
		}
	}

	p, ok := policies[featureKey]
	if !ok {
		p = a.fallbackPolicy(featureKey)
	}
	v = gate.Evaluate(featureKey, p, act)
	_ = a.auditor.RecordVerdict(ctx, audit.VerdictEvent{
		FeatureKey: featureKey,
		ActorRef:   a.refFn(act.ID),
		Allowed:    v.Allowed,
		Reason:     string(v.Reason),
		At:         a.now(),
	})
	return v
}

// fallbackPolicy resolves a feature absent from the loaded table: the default
// table if it knows the key, otherwise the deny-all zero policy.
func (a *Assembler) fallbackPolicy(featureKey string) policy.Policy {
	if p, ok := a.defaults[featureKey]; ok {
		return p
	}
	return policy.Fallback()
}

// restricted is the last-resort context: anonymous actor against the
// fallback table, with no collaborator involvement at all.
func (a *Assembler) restricted() Context {
	act := gate.ActorContext{Tier: tier.Anonymous}
	features := make(map[string]bool, len(a.defaults))
	for key, p := range a.defaults {
		features[key] = gate.Evaluate(key, p, act).Allowed
	}
	return Context{
		Anonymous:   true,
		Tier:        tier.Anonymous,
		Features:    features,
		GeneratedAt: a.now(),
	}
}

func (a *Assembler) recordFault(ctx context.Context, fault string, sev audit.Severity, errMsg string) {
	_ = a.auditor.RecordFault(ctx, audit.FaultEvent{
		Fault:    fault,
		Severity: sev,
		Err:      errMsg,
		At:       a.now(),
	})
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
