package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/crmhub/internal/repository"
)

// New wires every repository onto one pool. The pool is goroutine-safe.
func New(pool *pgxpool.Pool) *repository.Store {
	return &repository.Store{
		Tenants:   NewTenantStore(pool),
		Companies: NewCompanyStore(pool),
		Roles:     NewRoleStore(pool),
		Users:     NewUserStore(pool),
		Clients:   NewClientStore(pool),
		Leads:     NewLeadStore(pool),
	}
}
