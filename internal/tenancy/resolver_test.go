package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubdomainFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
		ok   bool
	}{
		{"acme.crm.example.com", "acme", true},
		{"Acme.CRM.example.com:8443", "acme", true},
		{"www.crm.example.com", "", false},
		{"example.com", "", false},
		{"crm.example", "", false},
		{"localhost", "", false},
		{"localhost:3000", "", false},
		{"127.0.0.1", "", false},
		{"127.0.0.1:8081", "", false},
		{"10.0.0.12:80", "", false},
		{"[::1]:8081", "", false},
		{"::1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, ok := SubdomainFromHost(tt.host)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsLocalHost(t *testing.T) {
	assert.True(t, IsLocalHost("localhost:3000"))
	assert.True(t, IsLocalHost("192.168.1.5"))
	assert.True(t, IsLocalHost("[::1]:80"))
	assert.False(t, IsLocalHost("acme.crm.example.com"))
	assert.False(t, IsLocalHost("example.com"))
}

type fakeTenants struct {
	bySub map[string]*models.Tenant
	calls int
}

func (f *fakeTenants) GetBySubdomain(_ context.Context, sub string) (*models.Tenant, error) {
	f.calls++
	return f.bySub[sub], nil
}

type mapCache map[string]*models.Tenant

func (m mapCache) GetTenant(_ context.Context, sub string) (*models.Tenant, bool) {
	t, ok := m[sub]
	return t, ok
}
func (m mapCache) SetTenant(_ context.Context, t *models.Tenant) { m[t.Subdomain] = t }
func (m mapCache) InvalidateTenant(_ context.Context, sub string) { delete(m, sub) }

func newFixture(headerOnLocal bool) (*Resolver, *fakeTenants, *models.Tenant) {
	acme := &models.Tenant{ID: uuid.New(), Subdomain: "acme", Status: models.TenantActive}
	lookup := &fakeTenants{bySub: map[string]*models.Tenant{"acme": acme}}
	return NewResolver(lookup, mapCache{}, headerOnLocal, zap.NewNop()), lookup, acme
}

func TestResolveFromHost(t *testing.T) {
	r, lookup, acme := newFixture(false)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "acme.crm.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, res.Tenant.ID)
	assert.Equal(t, "acme", res.Subdomain)

	_, err = r.Resolve(ctx, "acme.crm.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls, "second resolve should hit the cache")
}

func TestResolveUnknownSubdomain(t *testing.T) {
	r, _, _ := newFixture(false)
	_, err := r.Resolve(context.Background(), "ghost.crm.example.com", "")
	assert.ErrorIs(t, err, apperr.ErrTenantNotFound)
}

func TestResolveHeaderNeverOverridesHost(t *testing.T) {
	r, _, acme := newFixture(true)
	res, err := r.Resolve(context.Background(), "acme.crm.example.com", "other")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, res.Tenant.ID)
}

func TestResolveHeaderOnLocal(t *testing.T) {
	ctx := context.Background()

	r, _, _ := newFixture(false)
	res, err := r.Resolve(ctx, "localhost:3000", "acme")
	require.NoError(t, err)
	assert.Nil(t, res.Tenant, "header ignored unless enabled")
	assert.True(t, res.Local)

	r, _, acme := newFixture(true)
	res, err = r.Resolve(ctx, "localhost:3000", "ACME")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, res.Tenant.ID)

	_, err = r.Resolve(ctx, "localhost:3000", "ghost")
	assert.ErrorIs(t, err, apperr.ErrTenantNotFound)

	res, err = r.Resolve(ctx, "example.com:8080", "acme")
	require.NoError(t, err)
	assert.Nil(t, res.Tenant, "header is never read for real hostnames")
	assert.False(t, res.Local)
}

func TestPolicyRequire(t *testing.T) {
	tenantID := uuid.New()
	tenant := &models.Tenant{ID: tenantID}
	member := &models.User{Role: models.RoleManager, TenantID: &tenantID}
	other := uuid.New()
	outsider := &models.User{Role: models.RoleManager, TenantID: &other}
	admin := &models.User{Role: models.RoleSuperAdmin}

	strict := Policy{}
	lenient := Policy{AllowLocalWithoutTenant: true}

	assert.NoError(t, strict.Require(&Resolution{}, admin))
	assert.ErrorIs(t, strict.Require(&Resolution{}, member), apperr.ErrTenantRequired)
	assert.ErrorIs(t, strict.Require(&Resolution{Local: true}, member), apperr.ErrTenantRequired)
	assert.NoError(t, lenient.Require(&Resolution{Local: true}, member))
	assert.ErrorIs(t, lenient.Require(&Resolution{}, member), apperr.ErrTenantRequired)
	assert.NoError(t, strict.Require(&Resolution{Tenant: tenant}, member))
	assert.ErrorIs(t, strict.Require(&Resolution{Tenant: tenant}, outsider), apperr.ErrSessionInvalid)
}
