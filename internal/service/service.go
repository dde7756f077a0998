// Package service holds the entity services. Each operation takes the
// calling Principal, derives its repository Scope from it, and maps store
// outcomes onto apperr kinds. Route-level permission checks happen before
// a service is called; services enforce scoping and domain rules.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/events"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit well inside a Postgres bigint offset.
	MaxPage = 1_000_000
)

var validate = validator.New()

// TenantForgetter drops cached tenant lookups after a tenant changes.
type TenantForgetter interface {
	Forget(ctx context.Context, subdomain string)
}

type Deps struct {
	Store  *repository.Store
	Events events.Publisher
	// Tenants may be nil when no tenant cache is configured.
	Tenants TenantForgetter
	Logger  *zap.Logger
	Now     func() time.Time
}

type Services struct {
	Users     *UserService
	Companies *CompanyService
	Clients   *ClientService
	Leads     *LeadService
	Tenants   *TenantService
	Dashboard *DashboardService
	Roles     *RoleService
}

func New(d Deps) *Services {
	if d.Events == nil {
		d.Events = events.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	b := &base{store: d.Store, events: d.Events, logger: d.Logger, now: d.Now}
	return &Services{
		Users:     &UserService{base: b},
		Companies: &CompanyService{base: b},
		Clients:   &ClientService{base: b},
		Leads:     &LeadService{base: b},
		Tenants:   &TenantService{base: b, cache: d.Tenants},
		Dashboard: &DashboardService{base: b},
		Roles:     &RoleService{base: b},
	}
}

type base struct {
	store  *repository.Store
	events events.Publisher
	logger *zap.Logger
	now    func() time.Time
}

func (b *base) publish(ctx context.Context, group invalidation.Group, action invalidation.Action, id uuid.UUID, tenantID, companyID *uuid.UUID) {
	ev := invalidation.NewEvent(group, action, id.String())
	if tenantID != nil {
		ev.TenantID = tenantID.String()
	}
	if companyID != nil {
		ev.CompanyID = companyID.String()
	}
	b.events.Publish(ctx, ev)
}

// Query is the list query shared by every collection endpoint. Company
// and Tenant are honoured for super admins only.
type Query struct {
	Search     string
	Status     string
	Priority   string
	Role       string
	IsActive   *bool
	AssignedTo *uuid.UUID
	Company    *uuid.UUID
	Tenant     *uuid.UUID
	Page       int
	Limit      int
}

func (q Query) filter(scope repository.Scope) repository.ListFilter {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return repository.ListFilter{
		Scope:      scope,
		Search:     q.Search,
		Status:     q.Status,
		IsActive:   q.IsActive,
		Priority:   q.Priority,
		Role:       q.Role,
		AssignedTo: q.AssignedTo,
		Page:       page,
		Limit:      limit,
	}
}

// Page is one slice of a collection plus what is needed to link the
// neighbouring slices.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Limit int
}

func newPage[T any](items []T, total int, f repository.ListFilter) *Page[T] {
	return &Page[T]{Items: items, Total: total, Page: f.Page, Limit: f.Limit}
}

func (p *Page[T]) HasNext() bool { return p.Page*p.Limit < p.Total }

func (p *Page[T]) HasPrev() bool { return p.Page > 1 }

var nobody = uuid.Nil

// ListScope applies the scoping rule: super admins see everything or
// what their explicit filters select; everyone else sees their company.
func ListScope(p *auth.Principal, q Query) repository.Scope {
	if p.IsSuperAdmin() {
		return repository.Scope{TenantID: q.Tenant, CompanyID: q.Company}
	}
	return ownScope(p)
}

// EntityScope is the scope for addressing a single record by id.
func EntityScope(p *auth.Principal) repository.Scope {
	if p.IsSuperAdmin() {
		return repository.Scope{}
	}
	return ownScope(p)
}

// ownScope never widens: a user missing a tenant or company matches
// nothing rather than everything.
func ownScope(p *auth.Principal) repository.Scope {
	tenantID, companyID := p.User.TenantID, p.User.CompanyID
	if tenantID == nil {
		tenantID = &nobody
	}
	if companyID == nil {
		companyID = &nobody
	}
	return repository.Scope{TenantID: tenantID, CompanyID: companyID}
}

// problems collects field-level validation messages.
type problems map[string][]string

func (p problems) add(field, msg string) {
	p[field] = append(p[field], msg)
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return apperr.Validation(p)
}

func (p problems) required(field string, v *string) {
	if v == nil || *v == "" {
		p.add(field, "is required")
	}
}

func (p problems) email(field string, v *string) {
	if v == nil || *v == "" {
		return
	}
	if err := validate.Var(*v, "email"); err != nil {
		p.add(field, "must be a valid email address")
	}
}

// storeErr maps repository sentinels onto apperr kinds and wraps
// everything else as an internal failure.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("a record with the same unique value already exists")
	case errors.Is(err, repository.ErrAlreadyConverted):
		return apperr.ErrAlreadyConverted
	case errors.Is(err, repository.ErrSeatLimit):
		return apperr.Conflict("company user limit reached")
	default:
		return apperr.Internal(fmt.Errorf("%s: %w", op, err))
	}
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
