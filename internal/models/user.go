package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type RoleName string

const (
	RoleSuperAdmin   RoleName = "super_admin"
	RoleCompanyAdmin RoleName = "company_admin"
	RoleManager      RoleName = "manager"
	RoleSalesRep     RoleName = "sales_rep"
	RoleUser         RoleName = "user"
)

func (r RoleName) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleCompanyAdmin, RoleManager, RoleSalesRep, RoleUser:
		return true
	}
	return false
}

// Permission strings carried by roles.
const (
	PermViewUsers       = "view_users"
	PermCreateUsers     = "create_users"
	PermUpdateUsers     = "update_users"
	PermDeleteUsers     = "delete_users"
	PermViewCompanies   = "view_companies"
	PermCreateCompanies = "create_companies"
	PermUpdateCompanies = "update_companies"
	PermDeleteCompanies = "delete_companies"
	PermViewClients     = "view_clients"
	PermCreateClients   = "create_clients"
	PermUpdateClients   = "update_clients"
	PermDeleteClients   = "delete_clients"
	PermViewLeads       = "view_leads"
	PermCreateLeads     = "create_leads"
	PermUpdateLeads     = "update_leads"
	PermDeleteLeads     = "delete_leads"
	PermConvertLeads    = "convert_leads"
	PermViewDashboard   = "view_dashboard"
	PermManageSettings  = "manage_settings"
	PermManageTenants   = "manage_tenants"
	PermViewRoles       = "view_roles"
)

// Role is immutable reference data: a named permission bundle.
type Role struct {
	Name        RoleName `json:"name"`
	DisplayName string   `json:"displayName"`
	Permissions []string `json:"permissions"`
}

func (r *Role) Has(permission string) bool {
	return slices.Contains(r.Permissions, permission)
}

// User belongs to one company and tenant, except super admins, which
// belong to neither.
type User struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     *uuid.UUID `json:"tenant,omitempty"`
	CompanyID    *uuid.UUID `json:"company,omitempty"`
	Role         RoleName   `json:"role"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Phone        string     `json:"phone,omitempty"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// DefaultRoles is the reference permission catalogue. It is synced into the
// roles table at startup.
//
// super_admin reads everything across tenants but only writes users,
// companies and tenants; client and lead writes stay with company roles.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Admin",
			Permissions: []string{
				PermViewUsers, PermCreateUsers, PermUpdateUsers, PermDeleteUsers,
				PermViewCompanies, PermCreateCompanies, PermUpdateCompanies, PermDeleteCompanies,
				PermViewClients, PermViewLeads, PermViewDashboard, PermViewRoles,
				PermManageSettings, PermManageTenants,
			},
		},
		{
			Name:        RoleCompanyAdmin,
			DisplayName: "Company Admin",
			Permissions: []string{
				PermViewUsers, PermCreateUsers, PermUpdateUsers, PermDeleteUsers,
				PermViewCompanies, PermUpdateCompanies,
				PermViewClients, PermCreateClients, PermUpdateClients, PermDeleteClients,
				PermViewLeads, PermCreateLeads, PermUpdateLeads, PermDeleteLeads, PermConvertLeads,
				PermViewDashboard, PermViewRoles, PermManageSettings,
			},
		},
		{
			Name:        RoleManager,
			DisplayName: "Manager",
			Permissions: []string{
				PermViewUsers, PermViewCompanies,
				PermViewClients, PermCreateClients, PermUpdateClients, PermDeleteClients,
				PermViewLeads, PermCreateLeads, PermUpdateLeads, PermDeleteLeads, PermConvertLeads,
				PermViewDashboard, PermViewRoles,
			},
		},
		{
			Name:        RoleSalesRep,
			DisplayName: "Sales Representative",
			Permissions: []string{
				PermViewClients, PermCreateClients, PermUpdateClients,
				PermViewLeads, PermCreateLeads, PermUpdateLeads, PermConvertLeads,
				PermViewDashboard,
			},
		},
		{
			Name:        RoleUser,
			DisplayName: "User",
			Permissions: []string{PermViewClients, PermViewLeads, PermViewDashboard},
		},
	}
}
