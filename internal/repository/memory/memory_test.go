package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLead(t *testing.T, store *repository.Store, companyID uuid.UUID) *models.Lead {
	t.Helper()
	lead, err := store.Leads.Create(context.Background(), &models.Lead{
		TenantID:  uuid.New(),
		CompanyID: companyID,
		Name:      "Grace Hopper",
		Email:     "grace@example.com",
		Status:    models.LeadQualified,
		Priority:  models.PriorityHigh,
	})
	require.NoError(t, err)
	return lead
}

func TestConvertIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := New()
	companyID := uuid.New()
	lead := seedLead(t, store, companyID)
	scope := repository.Scope{CompanyID: &companyID}

	converted, client, err := store.Leads.Convert(ctx, scope, lead.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.True(t, converted.ConvertedToClient)
	assert.Equal(t, models.LeadQualified, converted.Status)
	require.NotNil(t, converted.ConvertedClient)
	assert.Equal(t, client.ID, *converted.ConvertedClient)

	_, _, err = store.Leads.Convert(ctx, scope, lead.ID, uuid.New(), time.Now())
	assert.ErrorIs(t, err, repository.ErrAlreadyConverted)

	_, total, err := store.Clients.List(ctx, repository.ListFilter{Scope: scope, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestConvertOutOfScopeLooksMissing(t *testing.T) {
	store := New()
	lead := seedLead(t, store, uuid.New())
	other := uuid.New()

	l, c, err := store.Leads.Convert(context.Background(), repository.Scope{CompanyID: &other}, lead.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.Nil(t, c)
}

func TestListPaginatesAndFilters(t *testing.T) {
	ctx := context.Background()
	store := New()
	companyID := uuid.New()
	for range 5 {
		seedLead(t, store, companyID)
	}
	_, err := store.Leads.Create(ctx, &models.Lead{CompanyID: companyID, Name: "Other", Status: models.LeadNew})
	require.NoError(t, err)

	scope := repository.Scope{CompanyID: &companyID}
	page, total, err := store.Leads.List(ctx, repository.ListFilter{Scope: scope, Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, page, 2)

	far, total, err := store.Leads.List(ctx, repository.ListFilter{Scope: scope, Page: math.MaxInt / 2, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Empty(t, far)

	filtered, total, err := store.Leads.List(ctx, repository.ListFilter{Scope: scope, Status: "new", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Other", filtered[0].Name)

	searched, _, err := store.Leads.List(ctx, repository.ListFilter{Scope: scope, Search: "GRACE", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, searched, 5)
}

func TestReserveSeatStopsAtMax(t *testing.T) {
	ctx := context.Background()
	store := New()
	company, err := store.Companies.Create(ctx, &models.Company{TenantID: uuid.New(), Name: "Acme", MaxUsers: 1, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, store.Companies.ReserveSeat(ctx, company.ID))
	assert.ErrorIs(t, store.Companies.ReserveSeat(ctx, company.ID), repository.ErrSeatLimit)

	require.NoError(t, store.Companies.ReleaseSeat(ctx, company.ID))
	assert.NoError(t, store.Companies.ReserveSeat(ctx, company.ID))
}

func TestUserEmailUniquePerTenant(t *testing.T) {
	ctx := context.Background()
	store := New()
	t1, t2 := uuid.New(), uuid.New()

	_, err := store.Users.Create(ctx, &models.User{TenantID: &t1, Email: "Sam@Example.com", Role: models.RoleUser})
	require.NoError(t, err)
	_, err = store.Users.Create(ctx, &models.User{TenantID: &t1, Email: "sam@example.com", Role: models.RoleUser})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	_, err = store.Users.Create(ctx, &models.User{TenantID: &t2, Email: "sam@example.com", Role: models.RoleUser})
	assert.NoError(t, err)

	found, err := store.Users.FindByEmail(ctx, t1, "SAM@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "sam@example.com", found.Email)
}

func TestExpireTrials(t *testing.T) {
	ctx := context.Background()
	store := New()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired, err := store.Tenants.Create(ctx, &models.Tenant{Subdomain: "old", Plan: models.PlanTrial, Status: models.TenantActive, TrialEndsAt: &past})
	require.NoError(t, err)
	_, err = store.Tenants.Create(ctx, &models.Tenant{Subdomain: "fresh", Plan: models.PlanTrial, Status: models.TenantActive, TrialEndsAt: &future})
	require.NoError(t, err)
	_, err = store.Tenants.Create(ctx, &models.Tenant{Subdomain: "paid", Plan: models.PlanStarter, Status: models.TenantActive, TrialEndsAt: &past})
	require.NoError(t, err)

	n, err := store.Tenants.ExpireTrials(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Tenants.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantTrialExpired, got.Status)
}
