// Package memory is an in-process implementation of the repositories.
// It backs STORE_DRIVER=memory for local runs and the service/API tests.
// All repositories share one mutex, which gives Convert the same
// all-or-nothing behaviour as the Postgres transaction.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/shopspring/decimal"
)

type state struct {
	mu        sync.Mutex
	tenants   map[uuid.UUID]*models.Tenant
	companies map[uuid.UUID]*models.Company
	roles     map[models.RoleName]*models.Role
	users     map[uuid.UUID]*models.User
	clients   map[uuid.UUID]*models.Client
	leads     map[uuid.UUID]*models.Lead
	now       func() time.Time
}

// New returns a Store whose repositories share one in-memory state, seeded
// with the default roles.
func New() *repository.Store {
	st := &state{
		tenants:   map[uuid.UUID]*models.Tenant{},
		companies: map[uuid.UUID]*models.Company{},
		roles:     map[models.RoleName]*models.Role{},
		users:     map[uuid.UUID]*models.User{},
		clients:   map[uuid.UUID]*models.Client{},
		leads:     map[uuid.UUID]*models.Lead{},
		now:       time.Now,
	}
	for _, r := range models.DefaultRoles() {
		st.roles[r.Name] = &r
	}
	return &repository.Store{
		Tenants:   &TenantStore{st},
		Companies: &CompanyStore{st},
		Roles:     &RoleStore{st},
		Users:     &UserStore{st},
		Clients:   &ClientStore{st},
		Leads:     &LeadStore{st},
	}
}

func inScope(s repository.Scope, tenantID, companyID *uuid.UUID) bool {
	if s.TenantID != nil && (tenantID == nil || *tenantID != *s.TenantID) {
		return false
	}
	if s.CompanyID != nil && (companyID == nil || *companyID != *s.CompanyID) {
		return false
	}
	return true
}

func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// page sorts newest first and applies offset/limit.
func page[T any](items []T, created func(T) time.Time, f repository.ListFilter) ([]T, int) {
	slices.SortStableFunc(items, func(a, b T) int { return created(b).Compare(created(a)) })
	total := len(items)
	start := min(f.Offset(), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	out := make([]T, 0, end-start)
	return append(out, items[start:end]...), total
}

func ptr[T any](v T) *T { return &v }

type TenantStore struct{ st *state }

func (s *TenantStore) Create(_ context.Context, t *models.Tenant) (*models.Tenant, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sub := strings.ToLower(t.Subdomain)
	for _, existing := range s.st.tenants {
		if existing.Subdomain == sub {
			return nil, repository.ErrDuplicate
		}
	}
	out := *t
	out.ID = uuid.New()
	out.Subdomain = sub
	out.CreatedAt = s.st.now()
	out.UpdatedAt = out.CreatedAt
	s.st.tenants[out.ID] = &out
	cp := out
	return &cp, nil
}

func (s *TenantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if t, ok := s.st.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *TenantStore) GetBySubdomain(_ context.Context, subdomain string) (*models.Tenant, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sub := strings.ToLower(subdomain)
	for _, t := range s.st.tenants {
		if t.Subdomain == sub {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *TenantStore) List(_ context.Context, f repository.ListFilter) ([]models.Tenant, int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	items := make([]models.Tenant, 0)
	for _, t := range s.st.tenants {
		if !matches(f.Search, t.Name, t.Subdomain) || (f.Status != "" && string(t.Status) != f.Status) {
			continue
		}
		items = append(items, *t)
	}
	out, total := page(items, func(t models.Tenant) time.Time { return t.CreatedAt }, f)
	return out, total, nil
}

func (s *TenantStore) Update(_ context.Context, t *models.Tenant) (*models.Tenant, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.tenants[t.ID]
	if !ok {
		return nil, nil
	}
	cur.Name, cur.Plan, cur.Status, cur.TrialEndsAt = t.Name, t.Plan, t.Status, t.TrialEndsAt
	cur.UpdatedAt = s.st.now()
	cp := *cur
	return &cp, nil
}

func (s *TenantStore) SetStatus(_ context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.tenants[id]
	if !ok {
		return nil, nil
	}
	cur.Status = status
	cur.UpdatedAt = s.st.now()
	cp := *cur
	return &cp, nil
}

func (s *TenantStore) Usage(_ context.Context, id uuid.UUID) (*models.TenantUsage, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var u models.TenantUsage
	for _, c := range s.st.companies {
		if c.TenantID == id {
			u.Companies++
		}
	}
	for _, usr := range s.st.users {
		if usr.TenantID != nil && *usr.TenantID == id {
			u.Users++
		}
	}
	for _, c := range s.st.clients {
		if c.TenantID == id {
			u.Clients++
		}
	}
	for _, l := range s.st.leads {
		if l.TenantID == id {
			u.Leads++
		}
	}
	return &u, nil
}

func (s *TenantStore) Stats(_ context.Context) (*models.TenantStats, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stats := &models.TenantStats{ByStatus: map[string]int64{}, ByPlan: map[string]int64{}}
	for _, t := range s.st.tenants {
		stats.Total++
		stats.ByStatus[string(t.Status)]++
		stats.ByPlan[string(t.Plan)]++
	}
	stats.Companies = int64(len(s.st.companies))
	stats.Users = int64(len(s.st.users))
	return stats, nil
}

func (s *TenantStore) ExpireTrials(_ context.Context, now time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var n int64
	for _, t := range s.st.tenants {
		if t.Plan == models.PlanTrial && t.Status == models.TenantActive && t.TrialEndsAt != nil && t.TrialEndsAt.Before(now) {
			t.Status = models.TenantTrialExpired
			t.UpdatedAt = s.st.now()
			n++
		}
	}
	return n, nil
}

type CompanyStore struct{ st *state }

func (s *CompanyStore) visible(scope repository.Scope, c *models.Company) bool {
	return inScope(scope, &c.TenantID, &c.ID)
}

func (s *CompanyStore) Create(_ context.Context, c *models.Company) (*models.Company, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := *c
	out.ID = uuid.New()
	out.CurrentUsers = 0
	out.CreatedAt = s.st.now()
	out.UpdatedAt = out.CreatedAt
	s.st.companies[out.ID] = &out
	cp := out
	return &cp, nil
}

func (s *CompanyStore) GetByID(_ context.Context, scope repository.Scope, id uuid.UUID) (*models.Company, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if c, ok := s.st.companies[id]; ok && s.visible(scope, c) {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *CompanyStore) List(_ context.Context, f repository.ListFilter) ([]models.Company, int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	items := make([]models.Company, 0)
	for _, c := range s.st.companies {
		if !s.visible(f.Scope, c) || !matches(f.Search, c.Name, c.Email, c.Industry) {
			continue
		}
		if f.IsActive != nil && c.IsActive != *f.IsActive {
			continue
		}
		items = append(items, *c)
	}
	out, total := page(items, func(c models.Company) time.Time { return c.CreatedAt }, f)
	return out, total, nil
}

func (s *CompanyStore) Update(_ context.Context, scope repository.Scope, c *models.Company) (*models.Company, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.companies[c.ID]
	if !ok || !s.visible(scope, cur) {
		return nil, nil
	}
	next := *c
	next.TenantID, next.CurrentUsers, next.CreatedAt = cur.TenantID, cur.CurrentUsers, cur.CreatedAt
	next.UpdatedAt = s.st.now()
	s.st.companies[c.ID] = &next
	cp := next
	return &cp, nil
}

func (s *CompanyStore) Deactivate(_ context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.companies[id]
	if !ok || !s.visible(scope, cur) {
		return false, nil
	}
	cur.IsActive = false
	cur.UpdatedAt = s.st.now()
	return true, nil
}

func (s *CompanyStore) ReserveSeat(_ context.Context, id uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.companies[id]
	if !ok || cur.CurrentUsers >= cur.MaxUsers {
		return repository.ErrSeatLimit
	}
	cur.CurrentUsers++
	return nil
}

func (s *CompanyStore) ReleaseSeat(_ context.Context, id uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if cur, ok := s.st.companies[id]; ok && cur.CurrentUsers > 0 {
		cur.CurrentUsers--
	}
	return nil
}

type RoleStore struct{ st *state }

func (s *RoleStore) List(_ context.Context) ([]models.Role, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	roles := make([]models.Role, 0, len(s.st.roles))
	for _, r := range s.st.roles {
		roles = append(roles, *r)
	}
	slices.SortFunc(roles, func(a, b models.Role) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return roles, nil
}

func (s *RoleStore) GetByName(_ context.Context, name models.RoleName) (*models.Role, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if r, ok := s.st.roles[name]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

type UserStore struct{ st *state }

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *UserStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.st.users {
		if existing.Email == email && sameTenant(existing.TenantID, u.TenantID) {
			return nil, repository.ErrDuplicate
		}
	}
	out := *u
	out.ID = uuid.New()
	out.Email = email
	out.CreatedAt = s.st.now()
	out.UpdatedAt = out.CreatedAt
	s.st.users[out.ID] = &out
	cp := out
	return &cp, nil
}

func (s *UserStore) GetByID(_ context.Context, scope repository.Scope, id uuid.UUID) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if u, ok := s.st.users[id]; ok && inScope(scope, u.TenantID, u.CompanyID) {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *UserStore) find(pred func(*models.User) bool) *models.User {
	for _, u := range s.st.users {
		if pred(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (s *UserStore) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	email = strings.ToLower(email)
	return s.find(func(u *models.User) bool {
		return u.Email == email && u.TenantID != nil && *u.TenantID == tenantID
	}), nil
}

func (s *UserStore) FindSuperAdminByEmail(_ context.Context, email string) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	email = strings.ToLower(email)
	return s.find(func(u *models.User) bool {
		return u.Email == email && u.TenantID == nil && u.IsSuperAdmin()
	}), nil
}

func (s *UserStore) FindAllByEmail(_ context.Context, email string) ([]models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	email = strings.ToLower(email)
	out := make([]models.User, 0)
	for _, u := range s.st.users {
		if u.Email == email {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *UserStore) List(_ context.Context, f repository.ListFilter) ([]models.User, int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	items := make([]models.User, 0)
	for _, u := range s.st.users {
		if !inScope(f.Scope, u.TenantID, u.CompanyID) || !matches(f.Search, u.Name, u.Email) {
			continue
		}
		if (f.Role != "" && string(u.Role) != f.Role) || (f.IsActive != nil && u.IsActive != *f.IsActive) {
			continue
		}
		items = append(items, *u)
	}
	out, total := page(items, func(u models.User) time.Time { return u.CreatedAt }, f)
	return out, total, nil
}

func (s *UserStore) Update(_ context.Context, scope repository.Scope, u *models.User) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.users[u.ID]
	if !ok || !inScope(scope, cur.TenantID, cur.CompanyID) {
		return nil, nil
	}
	email := strings.ToLower(u.Email)
	for id, other := range s.st.users {
		if id != u.ID && other.Email == email && sameTenant(other.TenantID, cur.TenantID) {
			return nil, repository.ErrDuplicate
		}
	}
	cur.Name, cur.Email, cur.Phone, cur.Role, cur.IsActive = u.Name, email, u.Phone, u.Role, u.IsActive
	cur.UpdatedAt = s.st.now()
	cp := *cur
	return &cp, nil
}

func (s *UserStore) Delete(_ context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.users[id]
	if !ok || !inScope(scope, cur.TenantID, cur.CompanyID) {
		return false, nil
	}
	delete(s.st.users, id)
	return true, nil
}

func (s *UserStore) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if u, ok := s.st.users[id]; ok {
		u.LastLogin = ptr(at)
	}
	return nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if u, ok := s.st.users[id]; ok {
		u.PasswordHash = hash
		u.UpdatedAt = s.st.now()
	}
	return nil
}

type ClientStore struct{ st *state }

func cloneClient(c *models.Client) *models.Client {
	cp := *c
	cp.Notes = append([]models.Note{}, c.Notes...)
	cp.Tags = append([]string{}, c.Tags...)
	return &cp
}

func (s *ClientStore) Create(_ context.Context, c *models.Client) (*models.Client, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.insertClient(c), nil
}

// insertClient expects st.mu to be held.
func (st *state) insertClient(c *models.Client) *models.Client {
	out := cloneClient(c)
	out.ID = uuid.New()
	out.Notes = []models.Note{}
	out.CreatedAt = st.now()
	out.UpdatedAt = out.CreatedAt
	st.clients[out.ID] = out
	return cloneClient(out)
}

func (s *ClientStore) GetByID(_ context.Context, scope repository.Scope, id uuid.UUID) (*models.Client, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if c, ok := s.st.clients[id]; ok && inScope(scope, &c.TenantID, &c.CompanyID) {
		return cloneClient(c), nil
	}
	return nil, nil
}

func (s *ClientStore) List(_ context.Context, f repository.ListFilter) ([]models.Client, int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	items := make([]models.Client, 0)
	for _, c := range s.st.clients {
		if !inScope(f.Scope, &c.TenantID, &c.CompanyID) || !matches(f.Search, c.Name, c.Email, c.CompanyName) {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
			continue
		}
		items = append(items, *cloneClient(c))
	}
	out, total := page(items, func(c models.Client) time.Time { return c.CreatedAt }, f)
	return out, total, nil
}

func (s *ClientStore) Update(_ context.Context, scope repository.Scope, c *models.Client) (*models.Client, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.clients[c.ID]
	if !ok || !inScope(scope, &cur.TenantID, &cur.CompanyID) {
		return nil, nil
	}
	next := cloneClient(c)
	next.TenantID, next.CompanyID, next.Notes = cur.TenantID, cur.CompanyID, cur.Notes
	next.Source, next.SourceLead, next.CreatedBy, next.CreatedAt = cur.Source, cur.SourceLead, cur.CreatedBy, cur.CreatedAt
	next.UpdatedAt = s.st.now()
	s.st.clients[c.ID] = next
	return cloneClient(next), nil
}

func (s *ClientStore) Delete(_ context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.clients[id]
	if !ok || !inScope(scope, &cur.TenantID, &cur.CompanyID) {
		return false, nil
	}
	delete(s.st.clients, id)
	return true, nil
}

func (s *ClientStore) AppendNote(_ context.Context, scope repository.Scope, id uuid.UUID, note models.Note) (*models.Client, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur, ok := s.st.clients[id]
	if !ok || !inScope(scope, &cur.TenantID, &cur.CompanyID) {
		return nil, nil
	}
	cur.Notes = append(cur.Notes, note)
	cur.UpdatedAt = s.st.now()
	return cloneClient(cur), nil
}

func (s *ClientStore) Stats(_ context.Context, scope repository.Scope) (*models.ClientStats, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stats := &models.ClientStats{ByStatus: map[string]int64{}, TotalValue: decimal.Zero}
	for _, c := range s.st.clients {
		if !inScope(scope, &c.TenantID, &c.CompanyID) {
			continue
		}
		stats.Total++
		stats.ByStatus[string(c.Status)]++
		stats.TotalValue = stats.TotalValue.Add(c.Value)
	}
	return stats, nil
}

type LeadStore struct{ st *state }

func cloneLead(l *models.Lead) *models.Lead {
	cp := *l
	cp.Notes = append([]models.Note{}, l.Notes...)
	cp.Activities = append([]models.Activity{}, l.Activities...)
	cp.Tags = append([]string{}, l.Tags...)
	return &cp
}

func (s *LeadStore) Create(_ context.Context, l *models.Lead) (*models.Lead, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := cloneLead(l)
	out.ID = uuid.New()
	out.ConvertedToClient, out.ConvertedDate, out.ConvertedClient = false, nil, nil
	out.Notes, out.Activities = []models.Note{}, []models.Activity{}
	out.CreatedAt = s.st.now()
	out.UpdatedAt = out.CreatedAt
	s.st.leads[out.ID] = out
	return cloneLead(out), nil
}

func (s *LeadStore) get(scope repository.Scope, id uuid.UUID) *models.Lead {
	l, ok := s.st.leads[id]
	if !ok || !inScope(scope, &l.TenantID, &l.CompanyID) {
		return nil
	}
	return l
}

func (s *LeadStore) GetByID(_ context.Context, scope repository.Scope, id uuid.UUID) (*models.Lead, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if l := s.get(scope, id); l != nil {
		return cloneLead(l), nil
	}
	return nil, nil
}

func (s *LeadStore) List(_ context.Context, f repository.ListFilter) ([]models.Lead, int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	items := make([]models.Lead, 0)
	for _, l := range s.st.leads {
		if !inScope(f.Scope, &l.TenantID, &l.CompanyID) || !matches(f.Search, l.Name, l.Email, l.CompanyName) {
			continue
		}
		if (f.Status != "" && string(l.Status) != f.Status) || (f.Priority != "" && string(l.Priority) != f.Priority) {
			continue
		}
		if f.AssignedTo != nil && (l.AssignedTo == nil || *l.AssignedTo != *f.AssignedTo) {
			continue
		}
		items = append(items, *cloneLead(l))
	}
	out, total := page(items, func(l models.Lead) time.Time { return l.CreatedAt }, f)
	return out, total, nil
}

func (s *LeadStore) Update(_ context.Context, scope repository.Scope, l *models.Lead) (*models.Lead, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur := s.get(scope, l.ID)
	if cur == nil {
		return nil, nil
	}
	next := cloneLead(l)
	next.TenantID, next.CompanyID = cur.TenantID, cur.CompanyID
	next.ConvertedToClient, next.ConvertedDate, next.ConvertedClient = cur.ConvertedToClient, cur.ConvertedDate, cur.ConvertedClient
	next.Notes, next.Activities = cur.Notes, cur.Activities
	next.CreatedBy, next.CreatedAt = cur.CreatedBy, cur.CreatedAt
	next.UpdatedAt = s.st.now()
	s.st.leads[l.ID] = next
	return cloneLead(next), nil
}

func (s *LeadStore) Delete(_ context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.get(scope, id) == nil {
		return false, nil
	}
	delete(s.st.leads, id)
	return true, nil
}

func (s *LeadStore) AppendNote(_ context.Context, scope repository.Scope, id uuid.UUID, note models.Note) (*models.Lead, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur := s.get(scope, id)
	if cur == nil {
		return nil, nil
	}
	cur.Notes = append(cur.Notes, note)
	cur.UpdatedAt = s.st.now()
	return cloneLead(cur), nil
}

func (s *LeadStore) AppendActivity(_ context.Context, scope repository.Scope, id uuid.UUID, activity models.Activity) (*models.Lead, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur := s.get(scope, id)
	if cur == nil {
		return nil, nil
	}
	cur.Activities = append(cur.Activities, activity)
	cur.UpdatedAt = s.st.now()
	return cloneLead(cur), nil
}

func (s *LeadStore) Convert(_ context.Context, scope repository.Scope, id uuid.UUID, convertedBy uuid.UUID, now time.Time) (*models.Lead, *models.Client, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	cur := s.get(scope, id)
	if cur == nil {
		return nil, nil, nil
	}
	if cur.ConvertedToClient {
		return nil, nil, repository.ErrAlreadyConverted
	}
	client := s.st.insertClient(cur.ToClient(convertedBy))
	cur.ConvertedToClient = true
	cur.ConvertedDate = ptr(now)
	cur.ConvertedClient = ptr(client.ID)
	cur.UpdatedAt = s.st.now()
	return cloneLead(cur), client, nil
}

func (s *LeadStore) Stats(_ context.Context, scope repository.Scope) (*models.LeadStats, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stats := &models.LeadStats{ByStatus: map[string]int64{}, PipelineValue: decimal.Zero, WeightedPipeline: decimal.Zero}
	for _, l := range s.st.leads {
		if !inScope(scope, &l.TenantID, &l.CompanyID) {
			continue
		}
		stats.Total++
		stats.ByStatus[string(l.Status)]++
		if l.ConvertedToClient {
			stats.Converted++
		}
		if l.Status.Open() {
			stats.PipelineValue = stats.PipelineValue.Add(l.EstimatedValue)
			stats.WeightedPipeline = stats.WeightedPipeline.Add(l.WeightedValue())
		}
	}
	return stats, nil
}
