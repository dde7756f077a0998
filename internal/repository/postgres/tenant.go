package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
)

const tenantColumns = `id, subdomain, name, plan, status, trial_ends_at, created_at, updated_at`

type TenantStore struct {
	pool *pgxpool.Pool
}

func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.ID,
		&t.Subdomain,
		&t.Name,
		&t.Plan,
		&t.Status,
		&t.TrialEndsAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TenantStore) Create(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	query := `
		INSERT INTO tenants (subdomain, name, plan, status, trial_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING ` + tenantColumns

	out, err := scanTenant(s.pool.QueryRow(ctx, query, t.Subdomain, t.Name, t.Plan, t.Status, t.TrialEndsAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return out, nil
}

func (s *TenantStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getOne(ctx, "id = $1", id)
}

func (s *TenantStore) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return s.getOne(ctx, "subdomain = lower($1)", subdomain)
}

func (s *TenantStore) getOne(ctx context.Context, predicate string, arg any) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + predicate

	t, err := scanTenant(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) List(ctx context.Context, f repository.ListFilter) ([]models.Tenant, int, error) {
	var w where
	w.search(f.Search, "name", "subdomain")
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tenants`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset())

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, total, nil
}

func (s *TenantStore) Update(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	query := `
		UPDATE tenants
		SET name = $2, plan = $3, status = $4, trial_ends_at = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + tenantColumns

	out, err := scanTenant(s.pool.QueryRow(ctx, query, t.ID, t.Name, t.Plan, t.Status, t.TrialEndsAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return out, nil
}

func (s *TenantStore) SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error) {
	query := `UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + tenantColumns

	out, err := scanTenant(s.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("set tenant status: %w", err)
	}
	return out, nil
}

func (s *TenantStore) Usage(ctx context.Context, id uuid.UUID) (*models.TenantUsage, error) {
	query := `
		SELECT
			(SELECT count(*) FROM companies WHERE tenant_id = $1),
			(SELECT count(*) FROM users WHERE tenant_id = $1),
			(SELECT count(*) FROM clients WHERE tenant_id = $1),
			(SELECT count(*) FROM leads WHERE tenant_id = $1)`

	var u models.TenantUsage
	if err := s.pool.QueryRow(ctx, query, id).Scan(&u.Companies, &u.Users, &u.Clients, &u.Leads); err != nil {
		return nil, fmt.Errorf("tenant usage: %w", err)
	}
	return &u, nil
}

func (s *TenantStore) Stats(ctx context.Context) (*models.TenantStats, error) {
	stats := &models.TenantStats{ByStatus: map[string]int64{}, ByPlan: map[string]int64{}}

	rows, err := s.pool.Query(ctx, `SELECT status, plan, count(*) FROM tenants GROUP BY status, plan`)
	if err != nil {
		return nil, fmt.Errorf("tenant stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, plan string
		var n int64
		if err := rows.Scan(&status, &plan, &n); err != nil {
			return nil, fmt.Errorf("scan tenant stats: %w", err)
		}
		stats.ByStatus[status] += n
		stats.ByPlan[plan] += n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT (SELECT count(*) FROM companies), (SELECT count(*) FROM users)`).
		Scan(&stats.Companies, &stats.Users)
	if err != nil {
		return nil, fmt.Errorf("count companies and users: %w", err)
	}
	return stats, nil
}

func (s *TenantStore) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE tenants
		SET status = $1, updated_at = now()
		WHERE plan = $2 AND status = $3 AND trial_ends_at IS NOT NULL AND trial_ends_at < $4`

	tag, err := s.pool.Exec(ctx, query, models.TenantTrialExpired, models.PlanTrial, models.TenantActive, now)
	if err != nil {
		return 0, fmt.Errorf("expire trials: %w", err)
	}
	return tag.RowsAffected(), nil
}
