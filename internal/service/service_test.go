package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/internal/repository/memory"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []invalidation.Event
}

func (r *recorder) Publish(_ context.Context, ev invalidation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() invalidation.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type env struct {
	store    *repository.Store
	svc      *Services
	events   *recorder
	tenant   *models.Tenant
	companyX *models.Company
	companyY *models.Company
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	rec := &recorder{}

	tenant, err := store.Tenants.Create(ctx, &models.Tenant{Subdomain: "acme", Name: "Acme", Plan: models.PlanStarter, Status: models.TenantActive})
	require.NoError(t, err)
	x, err := store.Companies.Create(ctx, &models.Company{TenantID: tenant.ID, Name: "X", MaxUsers: 10, IsActive: true, Settings: models.DefaultCompanySettings()})
	require.NoError(t, err)
	y, err := store.Companies.Create(ctx, &models.Company{TenantID: tenant.ID, Name: "Y", MaxUsers: 10, IsActive: true, Settings: models.DefaultCompanySettings()})
	require.NoError(t, err)

	svc := New(Deps{Store: store, Events: rec, Logger: zap.NewNop()})
	return &env{store: store, svc: svc, events: rec, tenant: tenant, companyX: x, companyY: y}
}

func (e *env) principal(t *testing.T, role models.RoleName, company *models.Company) *auth.Principal {
	t.Helper()
	ctx := context.Background()
	u := &models.User{Role: role, Name: string(role), Email: uuid.NewString() + "@acme.test", IsActive: true}
	if company != nil {
		u.TenantID, u.CompanyID = &company.TenantID, &company.ID
	}
	created, err := e.store.Users.Create(ctx, u)
	require.NoError(t, err)
	r, err := e.store.Roles.GetByName(ctx, role)
	require.NoError(t, err)
	return &auth.Principal{User: created, Role: r}
}

func str(s string) *string { return &s }

func (e *env) lead(t *testing.T, p *auth.Principal) *models.Lead {
	t.Helper()
	prob := 70
	value := decimal.NewFromInt(10000)
	l, err := e.svc.Leads.Create(context.Background(), p, LeadInput{
		Name:           str("Ada Lovelace"),
		Email:          str("ada@engines.test"),
		CompanyName:    str("Analytical Engines"),
		EstimatedValue: &value,
		Probability:    &prob,
		Tags:           []string{"vip"},
	})
	require.NoError(t, err)
	return l
}

func TestConvertOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	lead := e.lead(t, rep)
	assert.True(t, lead.WeightedValue().Equal(decimal.NewFromInt(7000)))

	conv, err := e.svc.Leads.Convert(ctx, rep, lead.ID)
	require.NoError(t, err)
	assert.True(t, conv.Lead.ConvertedToClient)
	assert.NotNil(t, conv.Lead.ConvertedDate)
	assert.Equal(t, models.LeadNew, conv.Lead.Status, "conversion leaves the lead status alone")
	assert.Equal(t, lead.Name, conv.Client.Name)
	assert.Equal(t, lead.Email, conv.Client.Email)
	assert.True(t, conv.Client.Value.Equal(lead.EstimatedValue))
	assert.Equal(t, models.SourceLeadConversion, conv.Client.Source)
	assert.Equal(t, []string{"vip"}, conv.Client.Tags)
	assert.ElementsMatch(t, []invalidation.Group{invalidation.Leads, invalidation.Clients, invalidation.Dashboard, invalidation.Tenant}, e.events.last().Stale)

	_, err = e.svc.Leads.Convert(ctx, rep, lead.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyConverted)

	page, err := e.svc.Clients.List(ctx, rep, Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	kept, err := e.svc.Leads.Get(ctx, rep, lead.ID)
	require.NoError(t, err)
	assert.True(t, kept.ConvertedToClient)
}

func TestConvertConcurrent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	lead := e.lead(t, rep)

	const n = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Leads.Convert(ctx, rep, lead.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.KindOf(err) == apperr.KindAlreadyConverted:
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	page, err := e.svc.Clients.List(ctx, rep, Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCrossCompanyLooksMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	adminY := e.principal(t, models.RoleCompanyAdmin, e.companyY)

	client, err := e.svc.Clients.Create(ctx, rep, ClientInput{Name: str("Grace"), Email: str("grace@navy.test")})
	require.NoError(t, err)
	lead := e.lead(t, rep)

	_, err = e.svc.Clients.Get(ctx, adminY, client.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.Clients.Update(ctx, adminY, client.ID, ClientInput{Name: str("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, e.svc.Clients.Delete(ctx, adminY, client.ID), apperr.ErrNotFound)
	_, err = e.svc.Clients.AddNote(ctx, adminY, client.ID, NoteInput{Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.Leads.Get(ctx, adminY, lead.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.Leads.Convert(ctx, adminY, lead.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.Users.Get(ctx, adminY, rep.User.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = e.svc.Companies.Get(ctx, adminY, e.companyX.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	page, err := e.svc.Clients.List(ctx, adminY, Query{Company: &e.companyX.ID})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "company filter is ignored for non super admins")

	root := e.principal(t, models.RoleSuperAdmin, nil)
	got, err := e.svc.Clients.Get(ctx, root, client.ID)
	require.NoError(t, err)
	assert.Equal(t, client.ID, got.ID)
	page, err = e.svc.Clients.List(ctx, root, Query{Company: &e.companyY.ID})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestClientRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	value := decimal.RequireFromString("1250.50")
	status := models.ClientPotential
	follow := time.Date(2030, 1, 2, 15, 0, 0, 0, time.UTC)

	in := ClientInput{
		Name:         str("Katherine Johnson"),
		Email:        str("katherine@nasa.test"),
		Phone:        str("+1 555 0100"),
		CompanyName:  str("NASA"),
		Industry:     str("Aerospace"),
		JobTitle:     str("Mathematician"),
		Status:       &status,
		Value:        &value,
		Currency:     str("EUR"),
		AssignedTo:   &rep.User.ID,
		Address:      &models.Address{City: "Hampton", Country: "US"},
		Tags:         []string{"orbital", "trajectory"},
		NextFollowUp: &follow,
	}
	created, err := e.svc.Clients.Create(ctx, rep, in)
	require.NoError(t, err)

	got, err := e.svc.Clients.Get(ctx, rep, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Katherine Johnson", got.Name)
	assert.Equal(t, "katherine@nasa.test", got.Email)
	assert.Equal(t, "+1 555 0100", got.Phone)
	assert.Equal(t, "NASA", got.CompanyName)
	assert.Equal(t, "Aerospace", got.Industry)
	assert.Equal(t, "Mathematician", got.JobTitle)
	assert.Equal(t, models.ClientPotential, got.Status)
	assert.True(t, value.Equal(got.Value))
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, rep.User.ID, *got.AssignedTo)
	assert.Equal(t, models.Address{City: "Hampton", Country: "US"}, got.Address)
	assert.Equal(t, []string{"orbital", "trajectory"}, got.Tags)
	assert.True(t, follow.Equal(*got.NextFollowUp))
	assert.Equal(t, e.companyX.ID, got.CompanyID)
	assert.Equal(t, rep.User.ID, got.CreatedBy)
}

func TestLeadRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mgr := e.principal(t, models.RoleManager, e.companyX)
	status := models.LeadProposal
	priority := models.PriorityUrgent
	prob := 40
	value := decimal.NewFromInt(5000)
	closeDate := time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC)

	created, err := e.svc.Leads.Create(ctx, mgr, LeadInput{
		Name:              str("Alan Turing"),
		Email:             str("alan@bletchley.test"),
		Status:            &status,
		Priority:          &priority,
		Source:            str("referral"),
		EstimatedValue:    &value,
		Probability:       &prob,
		ExpectedCloseDate: &closeDate,
	})
	require.NoError(t, err)

	got, err := e.svc.Leads.Get(ctx, mgr, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alan Turing", got.Name)
	assert.Equal(t, models.LeadProposal, got.Status)
	assert.Equal(t, models.PriorityUrgent, got.Priority)
	assert.Equal(t, "referral", got.Source)
	assert.Equal(t, 40, got.Probability)
	assert.True(t, got.WeightedValue().Equal(decimal.NewFromInt(2000)))
	assert.True(t, closeDate.Equal(*got.ExpectedCloseDate))
	assert.False(t, got.ConvertedToClient)
}

func TestLeadValidation(t *testing.T) {
	e := newEnv(t)
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	prob := 120
	bad := models.LeadStatus("won-ish")
	stranger := uuid.New()

	_, err := e.svc.Leads.Create(context.Background(), rep, LeadInput{
		Email:       str("not-an-email"),
		Probability: &prob,
		Status:      &bad,
		AssignedTo:  &stranger,
	})
	require.Error(t, err)
	appErr := apperr.From(err)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	for _, field := range []string{"name", "email", "probability", "status", "assignedTo"} {
		assert.Contains(t, appErr.Fields, field)
	}
}

type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) GetByID(context.Context, repository.Scope, uuid.UUID) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func TestAssigneeLookupFailureIsServerError(t *testing.T) {
	e := newEnv(t)
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	e.store.Users = failingUsers{e.store.Users}
	assignee := rep.User.ID

	_, err := e.svc.Clients.Create(context.Background(), rep, ClientInput{
		Name:       str("Grace Hopper"),
		Email:      str("grace@navy.test"),
		AssignedTo: &assignee,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindServer, apperr.From(err).Kind)

	_, err = e.svc.Leads.Create(context.Background(), rep, LeadInput{
		Name:       str("Ada Lovelace"),
		Email:      str("ada@engines.test"),
		AssignedTo: &assignee,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindServer, apperr.From(err).Kind)
}

func TestNotesAppendAndPrivacy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	other := e.principal(t, models.RoleSalesRep, e.companyX)
	admin := e.principal(t, models.RoleCompanyAdmin, e.companyX)
	lead := e.lead(t, rep)

	_, err := e.svc.Leads.AddNote(ctx, rep, lead.ID, NoteInput{Content: "first"})
	require.NoError(t, err)
	_, err = e.svc.Leads.AddNote(ctx, rep, lead.ID, NoteInput{Content: "second, private", IsPrivate: true})
	require.NoError(t, err)
	_, err = e.svc.Leads.AddNote(ctx, rep, lead.ID, NoteInput{Content: "   "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	mine, err := e.svc.Leads.Get(ctx, rep, lead.ID)
	require.NoError(t, err)
	require.Len(t, mine.Notes, 2)
	assert.Equal(t, "first", mine.Notes[0].Content)
	assert.Equal(t, rep.User.ID, mine.Notes[1].Author)

	theirs, err := e.svc.Leads.Get(ctx, other, lead.ID)
	require.NoError(t, err)
	assert.Len(t, theirs.Notes, 1)

	admins, err := e.svc.Leads.Get(ctx, admin, lead.ID)
	require.NoError(t, err)
	assert.Len(t, admins.Notes, 2)
}

func TestAddActivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	lead := e.lead(t, rep)
	when := time.Now().Add(48 * time.Hour)

	l, err := e.svc.Leads.AddActivity(ctx, rep, lead.ID, ActivityInput{Type: models.ActivityCall, ScheduledDate: when, Notes: "intro call"})
	require.NoError(t, err)
	require.Len(t, l.Activities, 1)
	assert.Equal(t, models.ActivityCall, l.Activities[0].Type)
	assert.Equal(t, rep.User.ID, l.Activities[0].CreatedBy)

	_, err = e.svc.Leads.AddActivity(ctx, rep, lead.ID, ActivityInput{Type: "fax", ScheduledDate: when})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUserSeatsAndRoles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	small, err := e.store.Companies.Create(ctx, &models.Company{TenantID: e.tenant.ID, Name: "Small", MaxUsers: 1, IsActive: true})
	require.NoError(t, err)
	root := e.principal(t, models.RoleSuperAdmin, nil)

	role := models.RoleSalesRep
	u, err := e.svc.Users.Create(ctx, root, UserInput{Name: str("Sam"), Email: str("Sam@Acme.test"), Password: str("password1"), Role: &role, Company: &small.ID})
	require.NoError(t, err)
	assert.Equal(t, "sam@acme.test", u.Email)
	assert.Equal(t, small.ID, *u.CompanyID)
	assert.NotEmpty(t, u.PasswordHash)

	_, err = e.svc.Users.Create(ctx, root, UserInput{Name: str("Pat"), Email: str("pat@acme.test"), Password: str("password1"), Company: &small.ID})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, e.svc.Users.Delete(ctx, root, u.ID))
	_, err = e.svc.Users.Create(ctx, root, UserInput{Name: str("Pat"), Email: str("pat@acme.test"), Password: str("password1"), Company: &small.ID})
	assert.NoError(t, err, "deleting a user frees the seat")

	admin := e.principal(t, models.RoleCompanyAdmin, e.companyX)
	escalate := models.RoleSuperAdmin
	_, err = e.svc.Users.Create(ctx, admin, UserInput{Name: str("Eve"), Email: str("eve@acme.test"), Password: str("password1"), Role: &escalate})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.svc.Users.Create(ctx, root, UserInput{Name: str("Nobody"), Email: str("no@acme.test"), Password: str("password1")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "super admin must name a company")

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(e.svc.Users.Delete(ctx, admin, admin.User.ID)))
}

func TestCompanyUpdateRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.principal(t, models.RoleCompanyAdmin, e.companyX)

	seats := 50
	_, err := e.svc.Companies.Update(ctx, admin, e.companyX.ID, CompanyInput{MaxUsers: &seats})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	c, err := e.svc.Companies.UpdateSettings(ctx, admin, nil, models.CompanySettings{Timezone: "UTC", Currency: "GBP", DateFormat: "DD/MM/YYYY"})
	require.NoError(t, err)
	assert.Equal(t, "GBP", c.Settings.Currency)

	_, err = e.svc.Companies.UpdateSettings(ctx, admin, nil, models.CompanySettings{Timezone: "Mars/Olympus", Currency: "gbp"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, e.svc.Companies.Delete(ctx, e.principal(t, models.RoleSuperAdmin, nil), e.companyY.ID))
	stored, err := e.store.Companies.GetByID(ctx, repository.Scope{}, e.companyY.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "companies are deactivated, not removed")
}

func TestDashboardStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.principal(t, models.RoleSalesRep, e.companyX)
	first := e.lead(t, rep)
	e.lead(t, rep)
	e.lead(t, rep)
	e.lead(t, rep)
	_, err := e.svc.Leads.Convert(ctx, rep, first.ID)
	require.NoError(t, err)

	stats, err := e.svc.Dashboard.Stats(ctx, rep, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Leads.Total)
	assert.True(t, stats.ConversionRate.Equal(decimal.NewFromInt(25)))
	assert.True(t, stats.PipelineValue.Equal(decimal.NewFromInt(40000)))
	assert.True(t, stats.WeightedPipeline.Equal(decimal.NewFromInt(28000)))
	assert.True(t, stats.TotalClientValue.Equal(decimal.NewFromInt(10000)))

	assert.True(t, ConversionRate(1, 3).Equal(decimal.RequireFromString("33.33")))
	assert.True(t, ConversionRate(0, 0).IsZero())
}

func TestTenantProvisioning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	root := e.principal(t, models.RoleSuperAdmin, nil)

	out, err := e.svc.Tenants.Create(ctx, root, TenantInput{
		Subdomain:     str("Globex"),
		Name:          str("Globex Corp"),
		AdminName:     str("Hank"),
		AdminEmail:    str("hank@globex.test"),
		AdminPassword: str("password1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "globex", out.Tenant.Subdomain)
	assert.Equal(t, models.PlanTrial, out.Tenant.Plan)
	require.NotNil(t, out.Tenant.TrialEndsAt)
	require.NotNil(t, out.Company)
	require.NotNil(t, out.Admin)
	assert.Equal(t, models.RoleCompanyAdmin, out.Admin.Role)
	assert.Equal(t, out.Tenant.ID, *out.Admin.TenantID)

	_, err = e.svc.Tenants.Create(ctx, root, TenantInput{Subdomain: str("globex"), Name: str("Again")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = e.svc.Tenants.Create(ctx, root, TenantInput{Subdomain: str("www"), Name: str("Reserved")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := e.svc.Tenants.Get(ctx, out.Tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Usage)
	assert.Equal(t, int64(1), got.Usage.Users)
	assert.Equal(t, int64(1), got.Usage.Companies)

	require.NoError(t, e.svc.Tenants.Delete(ctx, out.Tenant.ID))
	got, err = e.svc.Tenants.Get(ctx, out.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantCancelled, got.Status)

	_, err = e.svc.Tenants.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrTenantNotFound)
}

func TestExpireTrials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	_, err := e.store.Tenants.Create(ctx, &models.Tenant{Subdomain: "stale", Name: "Stale", Plan: models.PlanTrial, Status: models.TenantActive, TrialEndsAt: &past})
	require.NoError(t, err)

	n, err := e.svc.Tenants.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, invalidation.SuperAdmin, e.events.last().Group)
}
