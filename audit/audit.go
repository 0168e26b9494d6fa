// Package audit records entitlement verdicts and assembly faults to an
// external sink. Implementations are best-effort: they must never block the
// evaluation path, and callers ignore their errors.
package audit

import (
	"context"
	"time"
)

// Severity reflects how expected an event is. A missing billing row is a
// normal transient state (warn); a recovered panic is not (error).
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Fault names for assembly-level failures.
const (
	FaultPolicyLoadFailed   = "policy_load_failed"
	FaultIdentityLoadFailed = "identity_load_failed"
	FaultTierLookupFailed   = "tier_lookup_failed"
	FaultAssemblyPanic      = "assembly_panic"
)

// AnonymousRef is the actor reference recorded for actors with no identity.
const AnonymousRef = "anonymous"

// VerdictEvent is one (feature, actor) evaluation outcome.
type VerdictEvent struct {
	FeatureKey string            `json:"feature_key"`
	ActorRef   string            `json:"actor_ref"`
	Allowed    bool              `json:"allowed"`
	Reason     string            `json:"reason,omitempty"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// FaultEvent is an infrastructure failure observed during context assembly.
type FaultEvent struct {
	Fault    string            `json:"fault"`
	Severity Severity          `json:"severity"`
	Err      string            `json:"error,omitempty"`
	At       time.Time         `json:"at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Logger is the sink contract. Implementations should be non-blocking and
// best-effort; a failed write must never fail the evaluation that produced
// the event.
type Logger interface {
	RecordVerdict(ctx context.Context, ev VerdictEvent) error
	RecordFault(ctx context.Context, ev FaultEvent) error
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) RecordVerdict(context.Context, VerdictEvent) error { return nil }
func (NopLogger) RecordFault(context.Context, FaultEvent) error     { return nil }
