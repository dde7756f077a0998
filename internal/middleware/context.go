package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/tenancy"
)

// Context keys for values the middleware chain stores in gin.Context.
// Handlers read them through the typed helpers below.
const (
	ContextKeyPrincipal  = "principal"
	ContextKeyResolution = "tenant_resolution"
)

// GetPrincipal returns the authenticated caller, or nil on routes that
// run without Authenticate.
func GetPrincipal(c *gin.Context) *auth.Principal {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	p, ok := val.(*auth.Principal)
	if !ok {
		return nil
	}
	return p
}

// GetResolution returns what Tenant learned about the host. It is never
// nil after Tenant has run.
func GetResolution(c *gin.Context) *tenancy.Resolution {
	val, exists := c.Get(ContextKeyResolution)
	if !exists {
		return nil
	}
	res, ok := val.(*tenancy.Resolution)
	if !ok {
		return nil
	}
	return res
}

// Abort records err for the Errors renderer and stops the chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
