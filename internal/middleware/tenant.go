package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/authz"
	"github.com/lalith-99/crmhub/internal/tenancy"
)

// Tenant resolves the request host to a tenant. An unknown subdomain
// fails the request with TenantNotFound before any handler runs.
func Tenant(resolver *tenancy.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := resolver.Resolve(c.Request.Context(), c.Request.Host, c.GetHeader(tenancy.HeaderSubdomain))
		if err != nil {
			Abort(c, err)
			return
		}
		c.Set(ContextKeyResolution, res)
		c.Next()
	}
}

// SessionResolver is the part of the auth service Authenticate needs.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*auth.Principal, error)
}

// Authenticate requires a valid bearer token whose user may act under
// the resolved tenant. It must run after Tenant.
//
// Browsers cannot set headers on a websocket handshake, so upgrade
// requests may pass the token as ?token= instead.
func Authenticate(sessions SessionResolver, policy tenancy.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			Abort(c, apperr.New(apperr.KindSessionInvalid, "missing or malformed authorization header"))
			return
		}

		p, err := sessions.ResolveSession(c.Request.Context(), token)
		if err != nil {
			Abort(c, err)
			return
		}
		if err := policy.Require(GetResolution(c), p.User); err != nil {
			Abort(c, err)
			return
		}

		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if websocket.IsWebSocketUpgrade(c.Request) && c.Query("token") != "" {
			return c.Query("token"), true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Require checks one route requirement against the authenticated caller.
func Require(gate *authz.Gate, req authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Authorize(GetPrincipal(c), req); err != nil {
			Abort(c, err)
			return
		}
		c.Next()
	}
}

// Timeout bounds the request context. Handlers see ctx.Err() once the
// deadline passes; the store calls they make are cancelled with it.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody(apperr.KindServer, "request timed out", nil))
		}
	}
}
