package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/models"
)

// Conventions shared by every implementation:
//
//   - ctx comes first on anything that does I/O.
//   - GetByID/Update/Delete return nil, nil (or false, nil) when the row is
//     missing OR outside the Scope. Callers cannot tell the two apart.
//   - List methods return an empty slice, never nil.

var (
	// ErrDuplicate is returned when a unique key (email, subdomain) clashes.
	ErrDuplicate = errors.New("duplicate key")
	// ErrAlreadyConverted is returned by LeadRepository.Convert when the
	// compare-and-set on converted_to_client finds the flag already set.
	ErrAlreadyConverted = errors.New("lead already converted")
	// ErrSeatLimit is returned when a company has no free user seats.
	ErrSeatLimit = errors.New("company user limit reached")
)

// Scope restricts a query to a tenant and/or company. A nil field means
// "unrestricted" on that axis, which only super admins ever get.
type Scope struct {
	TenantID  *uuid.UUID
	CompanyID *uuid.UUID
}

// ListFilter carries the common list query parameters.
type ListFilter struct {
	Scope
	Search     string
	Status     string
	IsActive   *bool
	Priority   string
	Role       string
	AssignedTo *uuid.UUID
	Page       int
	Limit      int
}

// Offset is the number of rows before the requested page. It saturates
// at math.MaxInt instead of overflowing.
func (f ListFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

type TenantRepository interface {
	Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	List(ctx context.Context, f ListFilter) ([]models.Tenant, int, error)
	Update(ctx context.Context, t *models.Tenant) (*models.Tenant, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error)
	Usage(ctx context.Context, id uuid.UUID) (*models.TenantUsage, error)
	Stats(ctx context.Context) (*models.TenantStats, error)

	// ExpireTrials moves active trial tenants whose trial ended before now
	// to trial_expired and returns how many changed.
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
}

type CompanyRepository interface {
	Create(ctx context.Context, c *models.Company) (*models.Company, error)
	GetByID(ctx context.Context, scope Scope, id uuid.UUID) (*models.Company, error)
	List(ctx context.Context, f ListFilter) ([]models.Company, int, error)
	Update(ctx context.Context, scope Scope, c *models.Company) (*models.Company, error)
	// Deactivate sets is_active=false; companies are never hard-deleted.
	Deactivate(ctx context.Context, scope Scope, id uuid.UUID) (bool, error)

	// ReserveSeat increments current_users if it is below max_users,
	// atomically. Returns ErrSeatLimit when full.
	ReserveSeat(ctx context.Context, id uuid.UUID) error
	ReleaseSeat(ctx context.Context, id uuid.UUID) error
}

type RoleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	GetByName(ctx context.Context, name models.RoleName) (*models.Role, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, scope Scope, id uuid.UUID) (*models.User, error)

	// FindByEmail looks a user up inside one tenant.
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)
	// FindSuperAdminByEmail looks up a tenant-less super admin.
	FindSuperAdminByEmail(ctx context.Context, email string) (*models.User, error)
	// FindAllByEmail returns every user with that email across tenants.
	FindAllByEmail(ctx context.Context, email string) ([]models.User, error)

	List(ctx context.Context, f ListFilter) ([]models.User, int, error)
	Update(ctx context.Context, scope Scope, u *models.User) (*models.User, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) (bool, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

type ClientRepository interface {
	Create(ctx context.Context, c *models.Client) (*models.Client, error)
	GetByID(ctx context.Context, scope Scope, id uuid.UUID) (*models.Client, error)
	List(ctx context.Context, f ListFilter) ([]models.Client, int, error)
	Update(ctx context.Context, scope Scope, c *models.Client) (*models.Client, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) (bool, error)
	AppendNote(ctx context.Context, scope Scope, id uuid.UUID, note models.Note) (*models.Client, error)
	Stats(ctx context.Context, scope Scope) (*models.ClientStats, error)
}

type LeadRepository interface {
	Create(ctx context.Context, l *models.Lead) (*models.Lead, error)
	GetByID(ctx context.Context, scope Scope, id uuid.UUID) (*models.Lead, error)
	List(ctx context.Context, f ListFilter) ([]models.Lead, int, error)
	Update(ctx context.Context, scope Scope, l *models.Lead) (*models.Lead, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) (bool, error)
	AppendNote(ctx context.Context, scope Scope, id uuid.UUID, note models.Note) (*models.Lead, error)
	AppendActivity(ctx context.Context, scope Scope, id uuid.UUID, activity models.Activity) (*models.Lead, error)
	Stats(ctx context.Context, scope Scope) (*models.LeadStats, error)

	// Convert atomically flips converted_to_client from false to true and
	// inserts the client built from the lead, in one unit of work.
	// Returns nil, nil, nil when the lead is missing or out of scope, and
	// ErrAlreadyConverted when the flag was already set.
	Convert(ctx context.Context, scope Scope, id uuid.UUID, convertedBy uuid.UUID, now time.Time) (*models.Lead, *models.Client, error)
}

// Store bundles every repository so wiring code passes one value around.
type Store struct {
	Tenants   TenantRepository
	Companies CompanyRepository
	Roles     RoleRepository
	Users     UserRepository
	Clients   ClientRepository
	Leads     LeadRepository
}
