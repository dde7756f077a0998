package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanTrial        Plan = "trial"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanTrial, PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

type TenantStatus string

const (
	TenantActive       TenantStatus = "active"
	TenantSuspended    TenantStatus = "suspended"
	TenantTrialExpired TenantStatus = "trial_expired"
	TenantCancelled    TenantStatus = "cancelled"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantSuspended, TenantTrialExpired, TenantCancelled:
		return true
	}
	return false
}

// Tenant is the top-level isolation boundary, addressed by subdomain.
// Tenants are never hard-deleted; cancellation is a status.
type Tenant struct {
	ID          uuid.UUID    `json:"id"`
	Subdomain   string       `json:"subdomain"`
	Name        string       `json:"name"`
	Plan        Plan         `json:"plan"`
	Status      TenantStatus `json:"status"`
	TrialEndsAt *time.Time   `json:"trialEndsAt,omitempty"`
	Usage       *TenantUsage `json:"usage,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Operational reports whether users of the tenant may sign in.
func (t *Tenant) Operational() bool {
	return t.Status == TenantActive
}

// TenantUsage is computed on read, not stored.
type TenantUsage struct {
	Companies int64 `json:"companies"`
	Users     int64 `json:"users"`
	Clients   int64 `json:"clients"`
	Leads     int64 `json:"leads"`
}

type TenantStats struct {
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"byStatus"`
	ByPlan    map[string]int64 `json:"byPlan"`
	Companies int64            `json:"companies"`
	Users     int64            `json:"users"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

type CompanySettings struct {
	Timezone   string `json:"timezone"`
	Currency   string `json:"currency"`
	DateFormat string `json:"dateFormat"`
}

func DefaultCompanySettings() CompanySettings {
	return CompanySettings{Timezone: "UTC", Currency: "USD", DateFormat: "YYYY-MM-DD"}
}

// Company is an organisational unit inside a tenant. It owns users,
// clients and leads; every scoped query filters on CompanyID.
type Company struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Industry     string          `json:"industry,omitempty"`
	Address      Address         `json:"address"`
	Plan         Plan            `json:"plan"`
	MaxUsers     int             `json:"maxUsers"`
	CurrentUsers int             `json:"currentUsers"`
	IsActive     bool            `json:"isActive"`
	Settings     CompanySettings `json:"settings"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type Note struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Author    uuid.UUID `json:"author"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

// VisibleTo drops private notes not authored by viewer unless all is set.
func VisibleTo(notes []Note, viewer uuid.UUID, all bool) []Note {
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if n.IsPrivate && !all && n.Author != viewer {
			continue
		}
		out = append(out, n)
	}
	return out
}
