package policy

import "github.com/open-rails/gatekit/tier"

// DefaultTable returns the builtin policy table used when the policy store is
// unreachable. It is deliberately conservative: only the features an outage
// must not take down are enabled, and anything absent from the table resolves
// to Fallback(), which denies.
func DefaultTable() map[string]Policy {
	return map[string]Policy{
		// Baseline product surface, available to everyone.
		"app.dashboard": {Enabled: true, MinTier: tier.Anonymous},
		"app.search":    {Enabled: true, MinTier: tier.Anonymous},

		// Signed-in basics.
		"app.saved_items": {Enabled: true, MinTier: tier.Free},
		"export.csv":      {Enabled: true, MinTier: tier.Free},

		// Paid surface stays gated on tier even during an outage.
		"export.pdf":       {Enabled: true, MinTier: tier.Premium},
		"reports.advanced": {Enabled: true, MinTier: tier.Premium},
		"api.access":       {Enabled: true, MinTier: tier.Premium},
	}
}

// Fallback is the policy applied to a feature key with no record anywhere:
// the zero value, which denies with feature_disabled.
func Fallback() Policy { return Policy{} }
