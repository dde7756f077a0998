package authz

import (
	"context"
	"testing"

	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func principal(role models.RoleName) *auth.Principal {
	return &auth.Principal{User: &models.User{Role: role}}
}

func TestGate(t *testing.T) {
	gate, err := NewGate(context.Background(), memory.New().Roles, zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name    string
		role    models.RoleName
		req     Requirement
		allowed bool
	}{
		{"sales rep cannot delete clients", models.RoleSalesRep, Permission(models.PermDeleteClients), false},
		{"sales rep converts leads", models.RoleSalesRep, Permission(models.PermConvertLeads), true},
		{"manager deletes clients", models.RoleManager, Permission(models.PermDeleteClients), true},
		{"user reads leads", models.RoleUser, Permission(models.PermViewLeads), true},
		{"user cannot create leads", models.RoleUser, Permission(models.PermCreateLeads), false},
		{"company admin manages settings", models.RoleCompanyAdmin, Permission(models.PermManageSettings), true},
		{"company admin cannot manage tenants", models.RoleCompanyAdmin, Permission(models.PermManageTenants), false},
		{"super admin manages tenants", models.RoleSuperAdmin, Permission(models.PermManageTenants), true},
		{"super admin does not write leads", models.RoleSuperAdmin, Permission(models.PermCreateLeads), false},
		{"unknown permission", models.RoleCompanyAdmin, Permission("launch_rockets"), false},
		{"authenticated", models.RoleUser, Authenticated(), true},
		{"super admin only", models.RoleCompanyAdmin, SuperAdmin(), false},
		{"super admin passes", models.RoleSuperAdmin, SuperAdmin(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(principal(tt.role), tt.req)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrForbidden)
			}
		})
	}
}

func TestGateRejectsAnonymous(t *testing.T) {
	gate, err := NewGate(context.Background(), memory.New().Roles, zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, gate.Authorize(nil, Authenticated()), apperr.ErrForbidden)
	assert.False(t, gate.Allows(nil, models.PermViewLeads))
}
