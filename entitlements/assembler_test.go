package entitlements_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/gatekit/audit"
	"github.com/open-rails/gatekit/entitlements"
	"github.com/open-rails/gatekit/gate"
	"github.com/open-rails/gatekit/identity"
	"github.com/open-rails/gatekit/policy"
	"github.com/open-rails/gatekit/tier"
)

func pct(v int) *int { return &v }

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type failingRepo struct{}

func (failingRepo) LoadPolicies(context.Context) (map[string]policy.Policy, error) {
	return nil, policy.ErrUnavailable
}

type panickingRepo struct{}

func (panickingRepo) LoadPolicies(context.Context) (map[string]policy.Policy, error) {
	panic("boom")
}

type failingProvider struct{}

func (failingProvider) CurrentActor(context.Context) (*identity.Actor, error) {
	return nil, errors.New("session service unreachable")
}

type recordingAuditor struct {
	mu       sync.Mutex
	verdicts []audit.VerdictEvent
	faults   []audit.FaultEvent
}

func (r *recordingAuditor) RecordVerdict(_ context.Context, ev audit.VerdictEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, ev)
	return nil
}

func (r *recordingAuditor) RecordFault(_ context.Context, ev audit.FaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, ev)
	return nil
}

func (r *recordingAuditor) faultNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.faults))
	for _, f := range r.faults {
		out = append(out, f.Fault)
	}
	return out
}

func premiumUser(id string) *identity.Actor {
	return &identity.Actor{ID: id, RawTier: "monthly", SubscriptionActive: true}
}

func table() map[string]policy.Policy {
	return map[string]policy.Policy{
		"app.search":  {Enabled: true, MinTier: tier.Anonymous},
		"export.csv":  {Enabled: true, MinTier: tier.Free},
		"export.pdf":  {Enabled: true, MinTier: tier.Premium},
		"labs.hidden": {Enabled: false},
	}
}

func TestAssembleAuthenticatedPremium(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if ec.Anonymous || ec.ActorID != "u1" {
		t.Fatalf("actor not carried through: %+v", ec)
	}
	if ec.Tier != tier.Premium || !ec.HasActiveSubscription {
		t.Fatalf("tier not resolved: %+v", ec)
	}
	for _, want := range []string{"app.search", "export.csv", "export.pdf"} {
		if !ec.Enabled(want) {
			t.Errorf("feature %q denied for premium user", want)
		}
	}
	if ec.Enabled("labs.hidden") {
		t.Error("disabled feature allowed")
	}
}

func TestAssembleUnauthenticatedIsAnonymous(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{},
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if !ec.Anonymous || ec.ActorID != "" || ec.Tier != tier.Anonymous {
		t.Fatalf("expected anonymous context, got %+v", ec)
	}
	// Anonymous users still see the anonymous-tier surface.
	if !ec.Enabled("app.search") {
		t.Error("anonymous-tier feature denied")
	}
	if ec.Enabled("export.csv") {
		t.Error("free-tier feature allowed anonymously")
	}
}

func TestAssembleUnknownRawTierMapsToFree(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: &identity.Actor{ID: "u2", RawTier: "mystery-plan"}},
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())
	if ec.Tier != tier.Free {
		t.Fatalf("unknown raw tier resolved to %v, want free", ec.Tier)
	}
	if ec.Enabled("export.pdf") {
		t.Error("premium feature allowed from unknown billing plan")
	}
}

func TestAssembleIdentityFailureFailsClosed(t *testing.T) {
	auditor := &recordingAuditor{}
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		failingProvider{},
		entitlements.WithAuditLogger(auditor),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if !ec.Anonymous || ec.Tier != tier.Anonymous {
		t.Fatalf("identity failure did not degrade to anonymous: %+v", ec)
	}
	if !contains(auditor.faultNames(), audit.FaultIdentityLoadFailed) {
		t.Errorf("faults = %v, want identity_load_failed", auditor.faultNames())
	}
}

func TestAssemblePolicyFailureUsesDefaults(t *testing.T) {
	auditor := &recordingAuditor{}
	defaults := map[string]policy.Policy{
		"app.search": {Enabled: true, MinTier: tier.Anonymous},
		"export.pdf": {Enabled: true, MinTier: tier.Premium},
	}
	a := entitlements.NewAssembler(
		failingRepo{},
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithDefaults(defaults),
		entitlements.WithAuditLogger(auditor),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	// The resolved tier still applies; only the policy source is replaced.
	want := map[string]bool{"app.search": true, "export.pdf": true}
	if !reflect.DeepEqual(ec.Features, want) {
		t.Errorf("features = %v, want %v", ec.Features, want)
	}
	if !contains(auditor.faultNames(), audit.FaultPolicyLoadFailed) {
		t.Errorf("faults = %v, want policy_load_failed", auditor.faultNames())
	}
}

func TestAssemblePolicyFailureNeverImplicitAllow(t *testing.T) {
	a := entitlements.NewAssembler(
		failingRepo{},
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())
	if len(ec.Features) == 0 {
		t.Fatal("fallback produced an empty map")
	}
	if ec.Enabled("feature.that.never.existed") {
		t.Error("unknown feature allowed after policy failure")
	}
}

// A panic inside a collaborator goroutine is converted to that fetch's
// failure path, not propagated: the load falls back to the default table.
func TestAssemblePanickingRepositoryDegradesToDefaults(t *testing.T) {
	auditor := &recordingAuditor{}
	a := entitlements.NewAssembler(
		panickingRepo{},
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithAuditLogger(auditor),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if len(ec.Features) == 0 {
		t.Fatal("no feature map after repository panic")
	}
	if !contains(auditor.faultNames(), audit.FaultPolicyLoadFailed) {
		t.Errorf("faults = %v, want policy_load_failed", auditor.faultNames())
	}
}

// panickingAuditor blows up mid-assembly, after both fetches succeeded:
// the only escape hatch left is the outer recover.
type panickingAuditor struct {
	audit.NopLogger
}

func (panickingAuditor) RecordVerdict(context.Context, audit.VerdictEvent) error {
	panic("sink corrupted")
}

func TestAssemblePanicReturnsRestrictedContext(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithAuditLogger(panickingAuditor{}),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if !ec.Anonymous || ec.Tier != tier.Anonymous {
		t.Fatalf("restricted context not anonymous: %+v", ec)
	}
	if len(ec.Features) == 0 {
		t.Fatal("restricted context has no feature map")
	}
	for key, allowed := range ec.Features {
		if allowed {
			// Only anonymous-eligible defaults may survive.
			if p := policy.DefaultTable()[key]; !p.Enabled || p.MinTier != tier.Anonymous {
				t.Errorf("feature %q allowed in restricted context", key)
			}
		}
	}
}

func TestAssembleIdempotent(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	first := a.Assemble(context.Background())
	second := a.Assemble(context.Background())
	if !reflect.DeepEqual(first.Features, second.Features) {
		t.Errorf("feature maps differ across assemblies: %v vs %v", first.Features, second.Features)
	}
}

func TestAssembleIncludesDefaultOnlyFeatures(t *testing.T) {
	defaults := map[string]policy.Policy{
		"app.search":   {Enabled: true, MinTier: tier.Anonymous},
		"default.only": {Enabled: true, MinTier: tier.Free},
	}
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(map[string]policy.Policy{
			"app.search": {Enabled: false},
		}),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithDefaults(defaults),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if _, ok := ec.Features["default.only"]; !ok {
		t.Error("feature known only to the default table missing from the map")
	}
	// The store's record wins over the default for the same key.
	if ec.Enabled("app.search") {
		t.Error("store's disabled record overridden by default")
	}
}

func TestAssembleRecordsVerdicts(t *testing.T) {
	auditor := &recordingAuditor{}
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithAuditLogger(auditor),
		entitlements.WithPseudonymizer(audit.NewPseudonymizer([]byte("k"))),
		entitlements.WithLogger(quiet()),
	)
	ec := a.Assemble(context.Background())

	if len(auditor.verdicts) != len(ec.Features) {
		t.Fatalf("recorded %d verdicts for %d features", len(auditor.verdicts), len(ec.Features))
	}
	for _, v := range auditor.verdicts {
		if v.ActorRef == "u1" || v.ActorRef == "" {
			t.Errorf("audit carries raw or empty actor ref %q", v.ActorRef)
		}
		if !v.Allowed && v.Reason == "" {
			t.Errorf("denied verdict for %q has no reason", v.FeatureKey)
		}
	}
}

func TestCheckScenarioZeroRollout(t *testing.T) {
	// enabled premium policy with 0% rollout: premium user denied as
	// rollout_not_eligible, but an allowlist entry bypasses the rollout.
	base := policy.Policy{Enabled: true, MinTier: tier.Premium, RolloutPercentage: pct(0)}

	a := entitlements.NewAssembler(
		policy.NewStaticRepository(map[string]policy.Policy{"export.pdf": base}),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	v := a.Check(context.Background(), "export.pdf")
	if v.Allowed || v.Reason != gate.ReasonRolloutNotEligible {
		t.Fatalf("verdict = %+v, want rollout_not_eligible deny", v)
	}

	listed := base
	listed.Allowlist = []string{"u1"}
	a2 := entitlements.NewAssembler(
		policy.NewStaticRepository(map[string]policy.Policy{"export.pdf": listed}),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	if v := a2.Check(context.Background(), "export.pdf"); !v.Allowed {
		t.Fatalf("allowlisted actor denied with %q", v.Reason)
	}
}

func TestCheckUnknownFeatureDenies(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithLogger(quiet()),
	)
	v := a.Check(context.Background(), "feature.that.never.existed")
	if v.Allowed || v.Reason != gate.ReasonFeatureDisabled {
		t.Fatalf("verdict = %+v, want feature_disabled deny", v)
	}
}

func TestCheckSurvivesPanic(t *testing.T) {
	a := entitlements.NewAssembler(
		policy.NewStaticRepository(table()),
		identity.StaticProvider{Actor: premiumUser("u1")},
		entitlements.WithAuditLogger(panickingAuditor{}),
		entitlements.WithLogger(quiet()),
	)
	// The fallback evaluates export.pdf for an anonymous actor, which the
	// premium default cannot admit.
	v := a.Check(context.Background(), "export.pdf")
	if v.Allowed {
		t.Fatal("panic path allowed")
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
