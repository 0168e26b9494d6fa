// Package gategin adapts the entitlement engine to gin: a hydration
// middleware, a per-feature guard, and a JSON endpoint for handing the
// entitlement snapshot to clients.
package gategin

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/gatekit/entitlements"
)

const contextKey = "gatekit.entitlements"

// SetContext stashes an assembled entitlement context on the request.
func SetContext(c *gin.Context, ec entitlements.Context) {
	c.Set(contextKey, ec)
}

// GetContext returns the entitlement context stashed by Hydrate, if any.
func GetContext(c *gin.Context) (entitlements.Context, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return entitlements.Context{}, false
	}
	ec, ok := v.(entitlements.Context)
	return ec, ok
}
