package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/pkg/invalidation"
)

const defaultMaxUsers = 5

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

type CompanyService struct{ *base }

type CompanyInput struct {
	Name     *string                 `json:"name" binding:"omitempty,max=200"`
	Email    *string                 `json:"email" binding:"omitempty,email"`
	Phone    *string                 `json:"phone" binding:"omitempty,max=50"`
	Website  *string                 `json:"website" binding:"omitempty,url"`
	Industry *string                 `json:"industry" binding:"omitempty,max=100"`
	Address  *models.Address         `json:"address"`
	Plan     *models.Plan            `json:"plan"`
	MaxUsers *int                    `json:"maxUsers" binding:"omitempty,min=1,max=100000"`
	IsActive *bool                   `json:"isActive"`
	Settings *models.CompanySettings `json:"settings"`
	// Tenant selects the owning tenant on create.
	Tenant *uuid.UUID `json:"tenant"`
}

func checkSettings(s models.CompanySettings, errs problems) {
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		errs.add("settings.timezone", "must be an IANA time zone")
	}
	if !currencyCode.MatchString(s.Currency) {
		errs.add("settings.currency", "must be a three-letter ISO currency code")
	}
	if strings.TrimSpace(s.DateFormat) == "" {
		errs.add("settings.dateFormat", "is required")
	}
}

// Create provisions a company inside a tenant. Only super admins hold
// create_companies.
func (s *CompanyService) Create(ctx context.Context, p *auth.Principal, in CompanyInput) (*models.Company, error) {
	tenantID := in.Tenant
	if !p.IsSuperAdmin() {
		tenantID = p.User.TenantID
	}

	errs := problems{}
	errs.required("name", in.Name)
	errs.email("email", in.Email)
	if tenantID == nil {
		errs.add("tenant", "is required")
	}
	if in.Plan != nil && !in.Plan.Valid() {
		errs.add("plan", "is not a known plan")
	}
	settings := models.DefaultCompanySettings()
	if in.Settings != nil {
		settings = *in.Settings
		checkSettings(settings, errs)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	tenant, err := s.store.Tenants.GetByID(ctx, *tenantID)
	if err != nil {
		return nil, storeErr("load tenant", err)
	}
	if tenant == nil {
		return nil, apperr.Field("tenant", "does not exist")
	}

	c := &models.Company{
		TenantID: tenant.ID,
		Name:     strings.TrimSpace(*in.Name),
		Email:    deref(in.Email, ""),
		Phone:    deref(in.Phone, ""),
		Website:  deref(in.Website, ""),
		Industry: deref(in.Industry, ""),
		Address:  deref(in.Address, models.Address{}),
		Plan:     deref(in.Plan, tenant.Plan),
		MaxUsers: deref(in.MaxUsers, defaultMaxUsers),
		IsActive: deref(in.IsActive, true),
		Settings: settings,
	}
	created, err := s.store.Companies.Create(ctx, c)
	if err != nil {
		return nil, storeErr("create company", err)
	}

	s.publish(ctx, invalidation.Companies, invalidation.Created, created.ID, &created.TenantID, &created.ID)
	return created, nil
}

func (s *CompanyService) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Company, error) {
	c, err := s.store.Companies.GetByID(ctx, EntityScope(p), id)
	if err != nil {
		return nil, storeErr("get company", err)
	}
	if c == nil {
		return nil, apperr.NotFound("company")
	}
	return c, nil
}

func (s *CompanyService) List(ctx context.Context, p *auth.Principal, q Query) (*Page[models.Company], error) {
	f := q.filter(ListScope(p, q))
	items, total, err := s.store.Companies.List(ctx, f)
	if err != nil {
		return nil, storeErr("list companies", err)
	}
	return newPage(items, total, f), nil
}

// Update applies in. Plan, seat limit and active flag are commercial
// terms that only super admins may change.
func (s *CompanyService) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, in CompanyInput) (*models.Company, error) {
	c, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !p.IsSuperAdmin() && (in.Plan != nil || in.MaxUsers != nil || in.IsActive != nil) {
		return nil, apperr.ErrForbidden
	}

	errs := problems{}
	if in.Name != nil {
		errs.required("name", in.Name)
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		errs.email("email", in.Email)
		c.Email = *in.Email
	}
	if in.Phone != nil {
		c.Phone = *in.Phone
	}
	if in.Website != nil {
		c.Website = *in.Website
	}
	if in.Industry != nil {
		c.Industry = *in.Industry
	}
	if in.Address != nil {
		c.Address = *in.Address
	}
	if in.Plan != nil {
		if !in.Plan.Valid() {
			errs.add("plan", "is not a known plan")
		}
		c.Plan = *in.Plan
	}
	if in.MaxUsers != nil {
		if *in.MaxUsers < c.CurrentUsers {
			errs.add("maxUsers", "cannot be below the current number of users")
		}
		c.MaxUsers = *in.MaxUsers
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if in.Settings != nil {
		checkSettings(*in.Settings, errs)
		c.Settings = *in.Settings
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	updated, err := s.store.Companies.Update(ctx, EntityScope(p), c)
	if err != nil {
		return nil, storeErr("update company", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("company")
	}

	s.publish(ctx, invalidation.Companies, invalidation.Updated, updated.ID, &updated.TenantID, &updated.ID)
	return updated, nil
}

// Delete deactivates; company rows are kept because users, clients and
// leads reference them.
func (s *CompanyService) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	c, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	ok, err := s.store.Companies.Deactivate(ctx, EntityScope(p), id)
	if err != nil {
		return storeErr("deactivate company", err)
	}
	if !ok {
		return apperr.NotFound("company")
	}

	s.publish(ctx, invalidation.Companies, invalidation.Deleted, id, &c.TenantID, &c.ID)
	return nil
}

// UpdateSettings changes the caller's own company settings. Super admins
// have no company and must name one.
func (s *CompanyService) UpdateSettings(ctx context.Context, p *auth.Principal, companyID *uuid.UUID, settings models.CompanySettings) (*models.Company, error) {
	id := p.User.CompanyID
	if p.IsSuperAdmin() {
		id = companyID
	}
	if id == nil {
		return nil, apperr.Field("company", "is required")
	}
	return s.Update(ctx, p, *id, CompanyInput{Settings: &settings})
}
