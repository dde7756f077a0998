package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

type UserService struct{ *base }

// UserInput carries both create and update bodies. Nil fields are left
// unchanged on update.
type UserInput struct {
	Name     *string          `json:"name" binding:"omitempty,max=200"`
	Email    *string          `json:"email" binding:"omitempty,email"`
	Password *string          `json:"password" binding:"omitempty,min=8,max=128"`
	Phone    *string          `json:"phone" binding:"omitempty,max=50"`
	Role     *models.RoleName `json:"role"`
	IsActive *bool            `json:"isActive"`
	// Company is only read from super admins; others create users in
	// their own company.
	Company *uuid.UUID `json:"company"`
}

func (s *UserService) checkRole(p *auth.Principal, role models.RoleName, errs problems) {
	switch {
	case !role.Valid():
		errs.add("role", "is not a known role")
	case role == models.RoleSuperAdmin && !p.IsSuperAdmin():
		errs.add("role", "cannot be assigned")
	}
}

func (s *UserService) Create(ctx context.Context, p *auth.Principal, in UserInput) (*models.User, error) {
	errs := problems{}
	errs.required("name", in.Name)
	errs.required("email", in.Email)
	errs.email("email", in.Email)
	if in.Password == nil || len(*in.Password) < auth.MinPasswordLength {
		errs.add("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}
	role := deref(in.Role, models.RoleUser)
	s.checkRole(p, role, errs)
	if err := errs.err(); err != nil {
		return nil, err
	}

	user := &models.User{
		Role:     role,
		Name:     strings.TrimSpace(*in.Name),
		Email:    strings.ToLower(strings.TrimSpace(*in.Email)),
		Phone:    deref(in.Phone, ""),
		IsActive: deref(in.IsActive, true),
	}

	// Super admins are global and occupy no seat.
	var company *models.Company
	if role != models.RoleSuperAdmin {
		var err error
		company, err = s.targetCompany(ctx, p, in.Company)
		if err != nil {
			return nil, err
		}
		user.TenantID = &company.TenantID
		user.CompanyID = &company.ID
		if err := s.store.Companies.ReserveSeat(ctx, company.ID); err != nil {
			return nil, storeErr("reserve seat", err)
		}
	}

	hash, err := auth.HashPassword(*in.Password)
	if err != nil {
		s.release(ctx, company)
		return nil, apperr.Internal(err)
	}
	user.PasswordHash = hash

	created, err := s.store.Users.Create(ctx, user)
	if err != nil {
		s.release(ctx, company)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Field("email", "is already in use")
		}
		return nil, storeErr("create user", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", created.ID.String()),
		zap.String("role", string(created.Role)),
		zap.String("by", p.User.ID.String()),
	)
	s.publish(ctx, invalidation.Users, invalidation.Created, created.ID, created.TenantID, created.CompanyID)
	return created, nil
}

// targetCompany picks the company a new user joins and checks it can
// take members.
func (s *UserService) targetCompany(ctx context.Context, p *auth.Principal, requested *uuid.UUID) (*models.Company, error) {
	id := p.User.CompanyID
	if p.IsSuperAdmin() {
		id = requested
	}
	if id == nil {
		return nil, apperr.Field("company", "is required")
	}

	company, err := s.store.Companies.GetByID(ctx, EntityScope(p), *id)
	if err != nil {
		return nil, storeErr("load company", err)
	}
	if company == nil {
		return nil, apperr.Field("company", "does not exist")
	}
	if !company.IsActive {
		return nil, apperr.Field("company", "is inactive")
	}
	return company, nil
}

func (s *UserService) release(ctx context.Context, company *models.Company) {
	if company == nil {
		return
	}
	if err := s.store.Companies.ReleaseSeat(ctx, company.ID); err != nil {
		s.logger.Warn("failed to release seat", zap.String("company_id", company.ID.String()), zap.Error(err))
	}
}

func (s *UserService) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, EntityScope(p), id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, p *auth.Principal, q Query) (*Page[models.User], error) {
	f := q.filter(ListScope(p, q))
	users, total, err := s.store.Users.List(ctx, f)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return newPage(users, total, f), nil
}

func (s *UserService) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, in UserInput) (*models.User, error) {
	u, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	errs := problems{}
	if in.Name != nil {
		errs.required("name", in.Name)
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		errs.required("email", in.Email)
		errs.email("email", in.Email)
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	self := u.ID == p.User.ID
	if in.Role != nil && *in.Role != u.Role {
		if self {
			errs.add("role", "you cannot change your own role")
		}
		s.checkRole(p, *in.Role, errs)
		if u.IsSuperAdmin() != (*in.Role == models.RoleSuperAdmin) {
			errs.add("role", "cannot move a user in or out of super admin")
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		if self && !*in.IsActive {
			errs.add("isActive", "you cannot deactivate yourself")
		}
		u.IsActive = *in.IsActive
	}
	if in.Password != nil && len(*in.Password) < auth.MinPasswordLength {
		errs.add("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	updated, err := s.store.Users.Update(ctx, EntityScope(p), u)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Field("email", "is already in use")
		}
		return nil, storeErr("update user", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("user")
	}

	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if err := s.store.Users.UpdatePassword(ctx, updated.ID, hash); err != nil {
			return nil, storeErr("set password", err)
		}
	}

	s.publish(ctx, invalidation.Users, invalidation.Updated, updated.ID, updated.TenantID, updated.CompanyID)
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	if id == p.User.ID {
		return apperr.Field("id", "you cannot delete yourself")
	}
	u, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}

	ok, err := s.store.Users.Delete(ctx, EntityScope(p), id)
	if err != nil {
		return storeErr("delete user", err)
	}
	if !ok {
		return apperr.NotFound("user")
	}
	if u.CompanyID != nil {
		s.release(ctx, &models.Company{ID: *u.CompanyID})
	}

	s.publish(ctx, invalidation.Users, invalidation.Deleted, id, u.TenantID, u.CompanyID)
	return nil
}
