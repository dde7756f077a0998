package tenancy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/models"
	"go.uber.org/zap"
)

// HeaderSubdomain is advisory. It never overrides a subdomain taken from
// the host.
const HeaderSubdomain = "X-Tenant-Subdomain"

// Resolution is what the resolver learned about the request host.
type Resolution struct {
	Host      string
	Subdomain string
	Local     bool
	// Tenant is nil when the host carries no subdomain.
	Tenant *models.Tenant
}

func (r *Resolution) TenantID() *uuid.UUID {
	if r == nil || r.Tenant == nil {
		return nil
	}
	id := r.Tenant.ID
	return &id
}

// TenantLookup is the slice of the tenant repository the resolver needs.
type TenantLookup interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// Cache is an optional read-through cache in front of TenantLookup.
// Implementations swallow their own errors; a miss is always safe.
type Cache interface {
	GetTenant(ctx context.Context, subdomain string) (*models.Tenant, bool)
	SetTenant(ctx context.Context, t *models.Tenant)
	InvalidateTenant(ctx context.Context, subdomain string)
}

type Resolver struct {
	tenants       TenantLookup
	cache         Cache
	headerOnLocal bool
	logger        *zap.Logger
}

// NewResolver builds a resolver. cache may be nil. headerOnLocal lets the
// X-Tenant-Subdomain header choose the tenant on local hosts only.
//
// Why is the header advisory?
//   - Any client can set a header, but only DNS and the TLS certificate
//     decide which host a browser talks to. On a real hostname the
//     subdomain is the only trustworthy signal, so the header is logged
//     when it disagrees and otherwise ignored.
//   - On localhost and private addresses there is no subdomain to read,
//     so development setups and tests opt in to the header explicitly.
//   - Either way the tenant only narrows the request. The session's own
//     tenant must still match it (see Policy.Require).
func NewResolver(tenants TenantLookup, cache Cache, headerOnLocal bool, logger *zap.Logger) *Resolver {
	return &Resolver{tenants: tenants, cache: cache, headerOnLocal: headerOnLocal, logger: logger}
}

// Resolve derives the tenant for host. A subdomain that names no tenant
// fails with ErrTenantNotFound; a host without one resolves to no tenant.
func (r *Resolver) Resolve(ctx context.Context, host, hint string) (*Resolution, error) {
	res := &Resolution{Host: host, Local: IsLocalHost(host)}
	hint = strings.ToLower(strings.TrimSpace(hint))

	sub, ok := SubdomainFromHost(host)
	switch {
	case ok:
		if hint != "" && hint != sub {
			r.logger.Warn("tenant header disagrees with host, using host",
				zap.String("host", host),
				zap.String("header", hint),
			)
		}
	case res.Local && r.headerOnLocal && hint != "":
		sub = hint
	default:
		return res, nil
	}

	t, err := r.lookup(ctx, sub)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("resolve tenant %q: %w", sub, err))
	}
	if t == nil {
		return nil, apperr.ErrTenantNotFound
	}
	res.Subdomain = sub
	res.Tenant = t
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, sub string) (*models.Tenant, error) {
	if r.cache != nil {
		if t, ok := r.cache.GetTenant(ctx, sub); ok {
			return t, nil
		}
	}
	t, err := r.tenants.GetBySubdomain(ctx, sub)
	if err != nil || t == nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetTenant(ctx, t)
	}
	return t, nil
}

// Forget drops a cached tenant after it changes.
func (r *Resolver) Forget(ctx context.Context, subdomain string) {
	if r.cache != nil {
		r.cache.InvalidateTenant(ctx, subdomain)
	}
}

// Policy decides whether a user may act under a resolution.
type Policy struct {
	// AllowLocalWithoutTenant is a development convenience, not a
	// security boundary.
	AllowLocalWithoutTenant bool
}

// Require enforces the tenant rule. Super admins pass everywhere. Anyone
// else needs a tenant (local hosts excepted when allowed), and a resolved
// tenant must be their own.
func (p Policy) Require(res *Resolution, user *models.User) error {
	if user.IsSuperAdmin() {
		return nil
	}
	if res == nil || res.Tenant == nil {
		if res != nil && res.Local && p.AllowLocalWithoutTenant {
			return nil
		}
		return apperr.ErrTenantRequired
	}
	if user.TenantID == nil || *user.TenantID != res.Tenant.ID {
		return apperr.ErrSessionInvalid
	}
	return nil
}
