package service

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

const TrialPeriod = 14 * 24 * time.Hour

var (
	subdomainPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	reservedSubdomains = []string{"www", "api", "app", "admin", "mail", "static", "assets"}
)

type TenantService struct {
	*base
	cache TenantForgetter
}

type TenantInput struct {
	Subdomain   *string              `json:"subdomain"`
	Name        *string              `json:"name" binding:"omitempty,max=200"`
	Plan        *models.Plan         `json:"plan"`
	Status      *models.TenantStatus `json:"status"`
	TrialEndsAt *time.Time           `json:"trialEndsAt"`

	// Optional first company and company admin, created with the tenant.
	CompanyName   *string `json:"companyName" binding:"omitempty,max=200"`
	AdminName     *string `json:"adminName" binding:"omitempty,max=200"`
	AdminEmail    *string `json:"adminEmail" binding:"omitempty,email"`
	AdminPassword *string `json:"adminPassword" binding:"omitempty,min=8,max=128"`
}

// Provisioned is the result of creating a tenant.
type Provisioned struct {
	Tenant  *models.Tenant  `json:"tenant"`
	Company *models.Company `json:"company,omitempty"`
	Admin   *models.User    `json:"admin,omitempty"`
}

func checkSubdomain(sub string, errs problems) {
	switch {
	case !subdomainPattern.MatchString(sub):
		errs.add("subdomain", "must be lowercase letters, digits and hyphens")
	case slices.Contains(reservedSubdomains, sub):
		errs.add("subdomain", "is reserved")
	}
}

func (s *TenantService) forget(ctx context.Context, subdomain string) {
	if s.cache != nil {
		s.cache.Forget(ctx, subdomain)
	}
}

// Create provisions a tenant and, when admin details are supplied, its
// first company and company admin. The three writes are not one
// transaction; a failure after the tenant insert leaves the tenant in
// place and is reported.
func (s *TenantService) Create(ctx context.Context, p *auth.Principal, in TenantInput) (*Provisioned, error) {
	errs := problems{}
	errs.required("subdomain", in.Subdomain)
	errs.required("name", in.Name)
	sub := strings.ToLower(strings.TrimSpace(deref(in.Subdomain, "")))
	if sub != "" {
		checkSubdomain(sub, errs)
	}
	plan := deref(in.Plan, models.PlanTrial)
	if !plan.Valid() {
		errs.add("plan", "is not a known plan")
	}
	status := deref(in.Status, models.TenantActive)
	if !status.Valid() {
		errs.add("status", "is not a known status")
	}
	withAdmin := in.AdminEmail != nil
	if withAdmin {
		errs.required("adminName", in.AdminName)
		errs.email("adminEmail", in.AdminEmail)
		if in.AdminPassword == nil || len(*in.AdminPassword) < auth.MinPasswordLength {
			errs.add("adminPassword", "must be at least 8 characters")
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	t := &models.Tenant{
		Subdomain:   sub,
		Name:        strings.TrimSpace(*in.Name),
		Plan:        plan,
		Status:      status,
		TrialEndsAt: in.TrialEndsAt,
	}
	if plan == models.PlanTrial && t.TrialEndsAt == nil {
		end := s.now().Add(TrialPeriod).UTC()
		t.TrialEndsAt = &end
	}

	created, err := s.store.Tenants.Create(ctx, t)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Field("subdomain", "is already taken")
		}
		return nil, storeErr("create tenant", err)
	}
	s.logger.Info("tenant created", zap.String("tenant_id", created.ID.String()), zap.String("subdomain", created.Subdomain))
	s.publish(ctx, invalidation.SuperAdmin, invalidation.Created, created.ID, nil, nil)

	out := &Provisioned{Tenant: created}
	if !withAdmin {
		return out, nil
	}

	companyName := deref(in.CompanyName, created.Name)
	companies := &CompanyService{base: s.base}
	out.Company, err = companies.Create(ctx, p, CompanyInput{Name: &companyName, Tenant: &created.ID})
	if err != nil {
		return out, err
	}

	role := models.RoleCompanyAdmin
	users := &UserService{base: s.base}
	out.Admin, err = users.Create(ctx, p, UserInput{
		Name:     in.AdminName,
		Email:    in.AdminEmail,
		Password: in.AdminPassword,
		Role:     &role,
		Company:  &out.Company.ID,
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := s.store.Tenants.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get tenant", err)
	}
	if t == nil {
		return nil, apperr.ErrTenantNotFound
	}
	usage, err := s.store.Tenants.Usage(ctx, id)
	if err != nil {
		return nil, storeErr("tenant usage", err)
	}
	t.Usage = usage
	return t, nil
}

func (s *TenantService) List(ctx context.Context, q Query) (*Page[models.Tenant], error) {
	f := q.filter(repository.Scope{})
	items, total, err := s.store.Tenants.List(ctx, f)
	if err != nil {
		return nil, storeErr("list tenants", err)
	}
	return newPage(items, total, f), nil
}

func (s *TenantService) Update(ctx context.Context, id uuid.UUID, in TenantInput) (*models.Tenant, error) {
	t, err := s.store.Tenants.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get tenant", err)
	}
	if t == nil {
		return nil, apperr.ErrTenantNotFound
	}
	previous := t.Subdomain

	errs := problems{}
	if in.Subdomain != nil {
		sub := strings.ToLower(strings.TrimSpace(*in.Subdomain))
		checkSubdomain(sub, errs)
		t.Subdomain = sub
	}
	if in.Name != nil {
		errs.required("name", in.Name)
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Plan != nil {
		if !in.Plan.Valid() {
			errs.add("plan", "is not a known plan")
		}
		t.Plan = *in.Plan
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			errs.add("status", "is not a known status")
		}
		t.Status = *in.Status
	}
	if in.TrialEndsAt != nil {
		t.TrialEndsAt = in.TrialEndsAt
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	updated, err := s.store.Tenants.Update(ctx, t)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Field("subdomain", "is already taken")
		}
		return nil, storeErr("update tenant", err)
	}
	if updated == nil {
		return nil, apperr.ErrTenantNotFound
	}

	s.forget(ctx, previous)
	s.forget(ctx, updated.Subdomain)
	s.publish(ctx, invalidation.SuperAdmin, invalidation.Updated, updated.ID, &updated.ID, nil)
	return updated, nil
}

func (s *TenantService) SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error) {
	if !status.Valid() {
		return nil, apperr.Field("status", "is not a known status")
	}
	t, err := s.store.Tenants.SetStatus(ctx, id, status)
	if err != nil {
		return nil, storeErr("set tenant status", err)
	}
	if t == nil {
		return nil, apperr.ErrTenantNotFound
	}

	s.logger.Info("tenant status changed", zap.String("tenant_id", id.String()), zap.String("status", string(status)))
	s.forget(ctx, t.Subdomain)
	s.publish(ctx, invalidation.SuperAdmin, invalidation.Updated, t.ID, &t.ID, nil)
	return t, nil
}

// Delete cancels the tenant. Tenants are never removed.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.SetStatus(ctx, id, models.TenantCancelled)
	return err
}

func (s *TenantService) Stats(ctx context.Context) (*models.TenantStats, error) {
	stats, err := s.store.Tenants.Stats(ctx)
	if err != nil {
		return nil, storeErr("tenant stats", err)
	}
	return stats, nil
}

// Current returns the caller's tenant with usage: the resolved one when
// the host named a tenant, otherwise the user's own.
func (s *TenantService) Current(ctx context.Context, p *auth.Principal, res *tenancy.Resolution) (*models.Tenant, error) {
	id := res.TenantID()
	if id == nil {
		id = p.User.TenantID
	}
	if id == nil {
		return nil, apperr.ErrTenantRequired
	}
	return s.Get(ctx, *id)
}

// ExpireTrials ends trials whose end date has passed.
func (s *TenantService) ExpireTrials(ctx context.Context) (int64, error) {
	n, err := s.store.Tenants.ExpireTrials(ctx, s.now())
	if err != nil {
		return 0, storeErr("expire trials", err)
	}
	if n > 0 {
		s.publish(ctx, invalidation.SuperAdmin, invalidation.Updated, uuid.Nil, nil, nil)
	}
	return n, nil
}
