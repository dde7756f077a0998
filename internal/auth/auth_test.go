package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/internal/repository/memory"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret   = "test-secret-at-least-32-characters!!"
	testPassword = "correct-horse"
)

type fixture struct {
	store   *repository.Store
	svc     *Service
	tenant  *models.Tenant
	company *models.Company
	user    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	tenant, err := store.Tenants.Create(ctx, &models.Tenant{Subdomain: "acme", Name: "Acme", Plan: models.PlanStarter, Status: models.TenantActive})
	require.NoError(t, err)
	company, err := store.Companies.Create(ctx, &models.Company{TenantID: tenant.ID, Name: "Acme Sales", MaxUsers: 5, IsActive: true})
	require.NoError(t, err)

	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	user, err := store.Users.Create(ctx, &models.User{
		TenantID:     &tenant.ID,
		CompanyID:    &company.ID,
		Role:         models.RoleManager,
		Name:         "Mia Manager",
		Email:        "mia@acme.test",
		PasswordHash: hash,
		IsActive:     true,
	})
	require.NoError(t, err)

	svc := NewService(store, tenancy.Policy{AllowLocalWithoutTenant: true}, testSecret, time.Hour, zap.NewNop())
	return &fixture{store: store, svc: svc, tenant: tenant, company: company, user: user}
}

func (f *fixture) onTenant() *tenancy.Resolution {
	return &tenancy.Resolution{Host: "acme.crm.test", Subdomain: "acme", Tenant: f.tenant}
}

func TestAuthenticateAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Authenticate(ctx, Credentials{Email: "  MIA@acme.test ", Password: testPassword}, f.onTenant())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotNil(t, sess.Principal.User.LastLogin)
	assert.True(t, sess.Principal.Can(models.PermConvertLeads))

	p, err := f.svc.ResolveSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, p.User.ID)
	assert.Equal(t, models.RoleManager, p.Role.Name)
}

func TestAuthenticateGenericFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, wrongPass := f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: "nope-nope"}, f.onTenant())
	_, noUser := f.svc.Authenticate(ctx, Credentials{Email: "ghost@acme.test", Password: testPassword}, f.onTenant())

	assert.ErrorIs(t, wrongPass, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, noUser, apperr.ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), noUser.Error())
}

func TestAuthenticateInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("user", func(t *testing.T) {
		f := newFixture(t)
		f.user.IsActive = false
		_, err := f.store.Users.Update(ctx, repository.Scope{}, f.user)
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: testPassword}, f.onTenant())
		assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	})

	t.Run("company", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Companies.Deactivate(ctx, repository.Scope{}, f.company.ID)
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: testPassword}, f.onTenant())
		assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Tenants.SetStatus(ctx, f.tenant.ID, models.TenantSuspended)
		require.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: testPassword}, f.onTenant())
		assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	})
}

func TestAuthenticateWithoutTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := Credentials{Email: "mia@acme.test", Password: testPassword}

	_, err := f.svc.Authenticate(ctx, creds, &tenancy.Resolution{Host: "crm.example.com"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials, "no cross-tenant lookup on real hosts")

	sess, err := f.svc.Authenticate(ctx, creds, &tenancy.Resolution{Host: "localhost:3000", Local: true})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, sess.Principal.User.ID)

	strict := NewService(f.store, tenancy.Policy{}, testSecret, time.Hour, zap.NewNop())
	_, err = strict.Authenticate(ctx, creds, &tenancy.Resolution{Host: "localhost:3000", Local: true})
	assert.ErrorIs(t, err, apperr.ErrTenantRequired)
}

func TestSuperAdminLogsInAnywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	_, err = f.store.Users.Create(ctx, &models.User{Role: models.RoleSuperAdmin, Name: "Root", Email: "root@crm.test", PasswordHash: hash, IsActive: true})
	require.NoError(t, err)

	creds := Credentials{Email: "root@crm.test", Password: testPassword}
	sess, err := f.svc.Authenticate(ctx, creds, &tenancy.Resolution{Host: "crm.example.com"})
	require.NoError(t, err)
	assert.True(t, sess.Principal.IsSuperAdmin())

	_, err = f.svc.Authenticate(ctx, creds, f.onTenant())
	require.NoError(t, err)
}

func TestResolveSessionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	expired, err := GenerateToken(f.user.ID, f.tenant.ID, testSecret, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = f.svc.ResolveSession(ctx, expired)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)

	forged, err := GenerateToken(f.user.ID, f.tenant.ID, "some-other-secret", time.Hour, now)
	require.NoError(t, err)
	_, err = f.svc.ResolveSession(ctx, forged)
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)

	_, err = f.svc.ResolveSession(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)

	ghost, err := GenerateToken(uuid.New(), f.tenant.ID, testSecret, time.Hour, now)
	require.NoError(t, err)
	_, err = f.svc.ResolveSession(ctx, ghost)
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)

	wrongTenant, err := GenerateToken(f.user.ID, uuid.New(), testSecret, time.Hour, now)
	require.NoError(t, err)
	_, err = f.svc.ResolveSession(ctx, wrongTenant)
	assert.ErrorIs(t, err, apperr.ErrSessionInvalid)
}

func TestResolveSessionSeesDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: testPassword}, f.onTenant())
	require.NoError(t, err)

	f.user.IsActive = false
	_, err = f.store.Users.Update(ctx, repository.Scope{}, f.user)
	require.NoError(t, err)

	_, err = f.svc.ResolveSession(ctx, sess.Token)
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := &Principal{User: f.user}

	err := f.svc.ChangePassword(ctx, p, "wrong", "new-password-1")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = f.svc.ChangePassword(ctx, p, testPassword, "short")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, f.svc.ChangePassword(ctx, p, testPassword, "new-password-1"))
	_, err = f.svc.Authenticate(ctx, Credentials{Email: "mia@acme.test", Password: "new-password-1"}, f.onTenant())
	assert.NoError(t, err)
}

func TestParseTokenRejectsNoneAlg(t *testing.T) {
	// {"alg":"none","typ":"JWT"} . {"user_id":"...","iss":"crmhub"} . (empty)
	token := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ1c2VyX2lkIjoiMDAwMDAwMDAtMDAwMC0wMDAwLTAwMDAtMDAwMDAwMDAwMDAxIiwiaXNzIjoiY3JtaHViIn0."
	_, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
