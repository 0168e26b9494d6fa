package gategin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/gatekit/entitlements"
	"github.com/open-rails/gatekit/gate"
)

// StatusForReason maps a deny reason to the HTTP status the caller should
// see. Disabled and not-rolled-out features return 404 rather than 403 so
// their existence is not revealed to callers who cannot use them.
func StatusForReason(r gate.Reason) int {
	switch r {
	case gate.ReasonUnauthenticated:
		return http.StatusUnauthorized
	case gate.ReasonTierRestriction, gate.ReasonDenylisted, gate.ReasonNoActiveSubscription:
		return http.StatusForbidden
	case gate.ReasonFeatureDisabled, gate.ReasonRolloutNotEligible:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

// Hydrate assembles the entitlement context once per request and stashes it
// for downstream handlers.
func Hydrate(a *entitlements.Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetContext(c, a.Assemble(c.Request.Context()))
		c.Next()
	}
}

// RequireFeature guards a route behind one feature. Denies abort the request
// with the mapped status and a JSON body carrying the reason code.
func RequireFeature(a *entitlements.Assembler, featureKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := a.Check(c.Request.Context(), featureKey)
		if v.Allowed {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(StatusForReason(v.Reason), gin.H{
			"error":  "feature_unavailable",
			"reason": string(v.Reason),
		})
	}
}
