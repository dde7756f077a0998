// Package authz is the permission gate. Role bundles are loaded into a
// casbin enforcer as (role, permission) policies; every check is one
// Enforce call.
package authz

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/repository"
	"go.uber.org/zap"
)

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

type kind int

const (
	kindAuthenticated kind = iota
	kindPermission
	kindSuperAdmin
)

// Requirement is what a route demands of the caller.
type Requirement struct {
	kind       kind
	permission string
}

func Authenticated() Requirement { return Requirement{kind: kindAuthenticated} }

func Permission(p string) Requirement { return Requirement{kind: kindPermission, permission: p} }

func SuperAdmin() Requirement { return Requirement{kind: kindSuperAdmin} }

func (r Requirement) String() string {
	switch r.kind {
	case kindPermission:
		return "permission:" + r.permission
	case kindSuperAdmin:
		return "super_admin"
	default:
		return "authenticated"
	}
}

type Gate struct {
	enforcer *casbin.Enforcer
	logger   *zap.Logger
}

// NewGate loads every role from the repository into a fresh enforcer.
// Roles are reference data, so the policy is read once at startup.
func NewGate(ctx context.Context, roles repository.RoleRepository, logger *zap.Logger) (*Gate, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	list, err := roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	policies := make([][]string, 0)
	for _, role := range list {
		for _, p := range role.Permissions {
			policies = append(policies, []string{string(role.Name), p})
		}
	}
	if len(policies) > 0 {
		if _, err := enforcer.AddPolicies(policies); err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
	}

	logger.Info("permission gate loaded", zap.Int("roles", len(list)), zap.Int("policies", len(policies)))
	return &Gate{enforcer: enforcer, logger: logger}, nil
}

// Authorize returns nil or apperr.ErrForbidden. The caller cannot learn
// which requirement failed.
func (g *Gate) Authorize(p *auth.Principal, req Requirement) error {
	if p == nil || p.User == nil {
		return apperr.ErrForbidden
	}

	switch req.kind {
	case kindAuthenticated:
		return nil
	case kindSuperAdmin:
		if p.IsSuperAdmin() {
			return nil
		}
		return apperr.ErrForbidden
	case kindPermission:
		ok, err := g.enforcer.Enforce(string(p.User.Role), req.permission)
		if err != nil {
			g.logger.Error("enforce failed", zap.String("requirement", req.String()), zap.Error(err))
			return apperr.ErrForbidden
		}
		if !ok {
			return apperr.ErrForbidden
		}
		return nil
	}
	return apperr.ErrForbidden
}

// Allows is Authorize as a bool, for building permission lists.
func (g *Gate) Allows(p *auth.Principal, permission string) bool {
	return g.Authorize(p, Permission(permission)) == nil
}
