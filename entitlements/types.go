package entitlements

import (
	"time"

	"github.com/open-rails/gatekit/tier"
)

// Context is one actor's resolved entitlement snapshot: public identity
// fields plus a complete per-feature decision map. It is plain data with no
// live handles, safe to serialize across a process boundary (for example,
// server-to-client hydration), and is never mutated after assembly.
type Context struct {
	ActorID               string     `json:"actor_id,omitempty"`
	Anonymous             bool       `json:"anonymous"`
	Tier                  tier.Level `json:"tier"`
	HasActiveSubscription bool       `json:"has_active_subscription"`

	// Features has an entry for every known feature key; consumers never
	// need to distinguish "absent" from "denied".
	Features map[string]bool `json:"features"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Enabled reports whether the named feature resolved to allowed. Unknown
// features read as denied.
func (c Context) Enabled(featureKey string) bool {
	return c.Features[featureKey]
}
