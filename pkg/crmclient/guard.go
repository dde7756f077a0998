package crmclient

import (
	"slices"
	"strings"

	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/pkg/invalidation"
)

// Route is what a screen needs before it is shown. An empty Route only
// needs a signed-in user.
type Route struct {
	Permission string
	SuperAdmin bool
}

// Routes mirrors the permissions the server requires for the read
// endpoint behind each screen.
var Routes = map[invalidation.Group]Route{
	invalidation.Auth:       {},
	invalidation.Tenant:     {},
	invalidation.Users:      {Permission: models.PermViewUsers},
	invalidation.Companies:  {Permission: models.PermViewCompanies},
	invalidation.Clients:    {Permission: models.PermViewClients},
	invalidation.Leads:      {Permission: models.PermViewLeads},
	invalidation.Roles:      {Permission: models.PermViewRoles},
	invalidation.Dashboard:  {Permission: models.PermViewDashboard},
	invalidation.SuperAdmin: {SuperAdmin: true},
}

// Can reports whether the session holds permission.
func (s *Session) Can(permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && slices.Contains(s.info.Permissions, permission)
}

func (s *Session) isSuperAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.info.User != nil && s.info.User.IsSuperAdmin()
}

// CanVisit guards navigation to path, e.g. "/leads" or "/super-admin/tenants".
// Unknown paths and closed sessions are refused.
func (s *Session) CanVisit(path string) bool {
	if _, err := s.token(); err != nil {
		return false
	}
	trimmed := "/" + strings.TrimPrefix(strings.TrimPrefix(path, "/"), "api/")
	if strings.HasPrefix(trimmed, "/tenant/settings") {
		return s.Can(models.PermManageSettings)
	}

	group, ok := invalidation.GroupOf(trimmed)
	if !ok {
		return false
	}
	route, ok := Routes[group]
	switch {
	case !ok:
		return false
	case route.SuperAdmin:
		return s.isSuperAdmin()
	case route.Permission != "":
		return s.Can(route.Permission)
	}
	return true
}
