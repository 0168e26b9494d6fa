package gategin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/gatekit/entitlements"
)

// EntitlementsGET serves the caller's entitlement snapshot as JSON, for
// client-side hydration. It reuses the context stashed by Hydrate when
// present so the collaborators are not hit twice in one request.
func EntitlementsGET(a *entitlements.Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ec, ok := GetContext(c)
		if !ok {
			ec = a.Assemble(c.Request.Context())
		}
		c.JSON(http.StatusOK, ec)
	}
}
