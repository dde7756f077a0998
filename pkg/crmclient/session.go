package crmclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/service"
	"github.com/lalith-99/crmhub/pkg/envelope"
	"github.com/lalith-99/crmhub/pkg/invalidation"
	"go.uber.org/zap"
)

// Profile is the signed-in user with the role and permissions that drive
// route guarding.
type Profile struct {
	User        *models.User `json:"user"`
	Role        *models.Role `json:"role"`
	Permissions []string     `json:"permissions"`
}

type SessionInfo struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Profile
}

// Session is one signed-in user. It is safe for concurrent use. Close
// drops the token and the cache; a closed Session fails every call with
// ErrClosed.
type Session struct {
	client *Client
	cache  *cache

	mu     sync.RWMutex
	info   SessionInfo
	closed bool
}

func newSession(c *Client, info SessionInfo) *Session {
	return &Session{client: c, cache: newCache(), info: info}
}

func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Session) token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.info.Token, nil
}

// Close signs the session out locally. The server keeps no session
// state, so nothing is sent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.info = SessionInfo{}
	s.mu.Unlock()
	s.cache.clear()
}

// Invalidate drops cached reads in groups.
func (s *Session) Invalidate(groups ...invalidation.Group) {
	if n := s.cache.invalidate(groups...); n > 0 {
		s.client.logger.Debug("cache invalidated", zap.Int("entries", n), zap.Any("groups", groups))
	}
}

// ApplyEvent drops what a server change event marks stale.
func (s *Session) ApplyEvent(ev invalidation.Event) {
	s.Invalidate(ev.Stale...)
}

// CachedEntries reports how many reads are cached.
func (s *Session) CachedEntries() int {
	return s.cache.len()
}

func (s *Session) read(ctx context.Context, path string, query url.Values, out any) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	key := cacheKey(path, query)
	if body, ok := s.cache.get(key); ok {
		return decodeStrict(body, out)
	}

	group, cacheable := invalidation.GroupOf(path)
	at := s.cache.stamp(group)
	body, err := s.client.send(ctx, token, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := decodeStrict(body, out); err != nil {
		return err
	}
	if cacheable && !s.cache.put(key, group, body, at) {
		s.client.logger.Debug("stale read not cached", zap.String("path", path))
	}
	return nil
}

func (s *Session) write(ctx context.Context, method, path string, body, out any) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	raw, err := s.client.send(ctx, token, method, path, nil, body)
	// An AlreadyConverted answer means what we hold is stale too.
	if err == nil || HasKind(err, apperr.KindAlreadyConverted) {
		if group, ok := invalidation.GroupOf(path); ok {
			s.Invalidate(invalidation.Affected(group, actionOf(method, path))...)
		}
	}
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return decodeStrict(raw, out)
}

// actionOf names the mutation a request performs.
func actionOf(method, path string) invalidation.Action {
	switch {
	case strings.HasSuffix(path, "/convert"):
		return invalidation.Converted
	case strings.HasSuffix(path, "/notes"):
		return invalidation.Noted
	case strings.HasSuffix(path, "/activities"):
		return invalidation.Scheduled
	}
	switch method {
	case http.MethodPost:
		return invalidation.Created
	case http.MethodDelete:
		return invalidation.Deleted
	default:
		return invalidation.Updated
	}
}

func fetch[T any](ctx context.Context, s *Session, path string, query url.Values) (T, error) {
	var out envelope.Single[T]
	err := s.read(ctx, path, query, &out)
	return out.Data, err
}

func fetchList[T any](ctx context.Context, s *Session, path string, opts ListOptions) (*envelope.List[T], error) {
	var out envelope.List[T]
	if err := s.read(ctx, path, opts.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mutate[T any](ctx context.Context, s *Session, method, path string, body any) (T, error) {
	var out envelope.Single[T]
	err := s.write(ctx, method, path, body, &out)
	return out.Data, err
}

// ListOptions are the shared list filters. Zero values are omitted.
type ListOptions struct {
	Search     string
	Status     string
	Priority   string
	Role       string
	IsActive   *bool
	AssignedTo *uuid.UUID
	Company    *uuid.UUID
	Tenant     *uuid.UUID
	Page       int
	Limit      int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("search", o.Search)
	set("status", o.Status)
	set("priority", o.Priority)
	set("role", o.Role)
	if o.IsActive != nil {
		v.Set("isActive", strconv.FormatBool(*o.IsActive))
	}
	for k, id := range map[string]*uuid.UUID{"assignedTo": o.AssignedTo, "company": o.Company, "tenant": o.Tenant} {
		if id != nil {
			v.Set(k, id.String())
		}
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	return v
}

func entity(group invalidation.Group, id uuid.UUID) string {
	return "/api/" + string(group) + "/" + id.String()
}

func collection(group invalidation.Group) string {
	return "/api/" + string(group)
}

// Me reloads the caller's profile.
func (s *Session) Me(ctx context.Context) (Profile, error) {
	return fetch[Profile](ctx, s, "/api/auth/me", nil)
}

type passwordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	return s.write(ctx, http.MethodPut, "/api/auth/password", passwordChange{current, next}, nil)
}

func (s *Session) Users(ctx context.Context, opts ListOptions) (*envelope.List[models.User], error) {
	return fetchList[models.User](ctx, s, collection(invalidation.Users), opts)
}

func (s *Session) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return fetch[*models.User](ctx, s, entity(invalidation.Users, id), nil)
}

func (s *Session) CreateUser(ctx context.Context, in service.UserInput) (*models.User, error) {
	return mutate[*models.User](ctx, s, http.MethodPost, collection(invalidation.Users), in)
}

func (s *Session) UpdateUser(ctx context.Context, id uuid.UUID, in service.UserInput) (*models.User, error) {
	return mutate[*models.User](ctx, s, http.MethodPut, entity(invalidation.Users, id), in)
}

func (s *Session) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, http.MethodDelete, entity(invalidation.Users, id), nil, nil)
}

func (s *Session) Companies(ctx context.Context, opts ListOptions) (*envelope.List[models.Company], error) {
	return fetchList[models.Company](ctx, s, collection(invalidation.Companies), opts)
}

func (s *Session) Company(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return fetch[*models.Company](ctx, s, entity(invalidation.Companies, id), nil)
}

func (s *Session) CreateCompany(ctx context.Context, in service.CompanyInput) (*models.Company, error) {
	return mutate[*models.Company](ctx, s, http.MethodPost, collection(invalidation.Companies), in)
}

func (s *Session) UpdateCompany(ctx context.Context, id uuid.UUID, in service.CompanyInput) (*models.Company, error) {
	return mutate[*models.Company](ctx, s, http.MethodPut, entity(invalidation.Companies, id), in)
}

func (s *Session) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, http.MethodDelete, entity(invalidation.Companies, id), nil, nil)
}

func (s *Session) Clients(ctx context.Context, opts ListOptions) (*envelope.List[models.Client], error) {
	return fetchList[models.Client](ctx, s, collection(invalidation.Clients), opts)
}

func (s *Session) Client(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	return fetch[*models.Client](ctx, s, entity(invalidation.Clients, id), nil)
}

func (s *Session) CreateClient(ctx context.Context, in service.ClientInput) (*models.Client, error) {
	return mutate[*models.Client](ctx, s, http.MethodPost, collection(invalidation.Clients), in)
}

func (s *Session) UpdateClient(ctx context.Context, id uuid.UUID, in service.ClientInput) (*models.Client, error) {
	return mutate[*models.Client](ctx, s, http.MethodPut, entity(invalidation.Clients, id), in)
}

func (s *Session) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, http.MethodDelete, entity(invalidation.Clients, id), nil, nil)
}

func (s *Session) AddClientNote(ctx context.Context, id uuid.UUID, in service.NoteInput) (*models.Client, error) {
	return mutate[*models.Client](ctx, s, http.MethodPost, entity(invalidation.Clients, id)+"/notes", in)
}

func (s *Session) Leads(ctx context.Context, opts ListOptions) (*envelope.List[models.Lead], error) {
	return fetchList[models.Lead](ctx, s, collection(invalidation.Leads), opts)
}

func (s *Session) Lead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	return fetch[*models.Lead](ctx, s, entity(invalidation.Leads, id), nil)
}

func (s *Session) CreateLead(ctx context.Context, in service.LeadInput) (*models.Lead, error) {
	return mutate[*models.Lead](ctx, s, http.MethodPost, collection(invalidation.Leads), in)
}

func (s *Session) UpdateLead(ctx context.Context, id uuid.UUID, in service.LeadInput) (*models.Lead, error) {
	return mutate[*models.Lead](ctx, s, http.MethodPut, entity(invalidation.Leads, id), in)
}

func (s *Session) DeleteLead(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, http.MethodDelete, entity(invalidation.Leads, id), nil, nil)
}

// ConvertLead turns a lead into a client. A second attempt fails with an
// APIError of kind AlreadyConverted; check with HasKind.
func (s *Session) ConvertLead(ctx context.Context, id uuid.UUID) (*service.Conversion, error) {
	return mutate[*service.Conversion](ctx, s, http.MethodPost, entity(invalidation.Leads, id)+"/convert", nil)
}

func (s *Session) AddLeadNote(ctx context.Context, id uuid.UUID, in service.NoteInput) (*models.Lead, error) {
	return mutate[*models.Lead](ctx, s, http.MethodPost, entity(invalidation.Leads, id)+"/notes", in)
}

func (s *Session) AddLeadActivity(ctx context.Context, id uuid.UUID, in service.ActivityInput) (*models.Lead, error) {
	return mutate[*models.Lead](ctx, s, http.MethodPost, entity(invalidation.Leads, id)+"/activities", in)
}

// Tenant returns the caller's tenant with usage counters.
func (s *Session) Tenant(ctx context.Context) (*models.Tenant, error) {
	return fetch[*models.Tenant](ctx, s, collection(invalidation.Tenant), nil)
}

func (s *Session) UpdateSettings(ctx context.Context, settings models.CompanySettings) (*models.Company, error) {
	return mutate[*models.Company](ctx, s, http.MethodPut, collection(invalidation.Tenant)+"/settings", settings)
}

func (s *Session) Roles(ctx context.Context) ([]models.Role, error) {
	return fetch[[]models.Role](ctx, s, collection(invalidation.Roles), nil)
}

func (s *Session) DashboardStats(ctx context.Context, opts ListOptions) (*service.DashboardStats, error) {
	return fetch[*service.DashboardStats](ctx, s, collection(invalidation.Dashboard)+"/stats", opts.values())
}

func (s *Session) Tenants(ctx context.Context, opts ListOptions) (*envelope.List[models.Tenant], error) {
	return fetchList[models.Tenant](ctx, s, collection(invalidation.SuperAdmin)+"/tenants", opts)
}

func (s *Session) CreateTenant(ctx context.Context, in service.TenantInput) (*service.Provisioned, error) {
	return mutate[*service.Provisioned](ctx, s, http.MethodPost, collection(invalidation.SuperAdmin)+"/tenants", in)
}

type statusChange struct {
	Status models.TenantStatus `json:"status"`
}

func (s *Session) SetTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error) {
	return mutate[*models.Tenant](ctx, s, http.MethodPut, collection(invalidation.SuperAdmin)+"/tenants/"+id.String()+"/status", statusChange{status})
}

func (s *Session) PlatformStats(ctx context.Context) (*models.TenantStats, error) {
	return fetch[*models.TenantStats](ctx, s, collection(invalidation.SuperAdmin)+"/stats", nil)
}
