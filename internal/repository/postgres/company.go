package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
)

const companyColumns = `id, tenant_id, name, email, phone, website, industry, address, plan,
	max_users, current_users, is_active, settings, created_at, updated_at`

type CompanyStore struct {
	pool *pgxpool.Pool
}

func NewCompanyStore(pool *pgxpool.Pool) *CompanyStore {
	return &CompanyStore{pool: pool}
}

func scanCompany(row scanner) (*models.Company, error) {
	var c models.Company
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Website,
		&c.Industry,
		&c.Address,
		&c.Plan,
		&c.MaxUsers,
		&c.CurrentUsers,
		&c.IsActive,
		&c.Settings,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CompanyStore) Create(ctx context.Context, c *models.Company) (*models.Company, error) {
	query := `
		INSERT INTO companies (tenant_id, name, email, phone, website, industry, address, plan,
			max_users, current_users, is_active, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, now(), now())
		RETURNING ` + companyColumns

	out, err := scanCompany(s.pool.QueryRow(ctx, query,
		c.TenantID, c.Name, c.Email, c.Phone, c.Website, c.Industry, c.Address, c.Plan,
		c.MaxUsers, c.IsActive, c.Settings,
	))
	if err != nil {
		return nil, fmt.Errorf("insert company: %w", err)
	}
	return out, nil
}

func (s *CompanyStore) GetByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (*models.Company, error) {
	var w where
	w.add("id = ?", id)
	companyScope(&w, scope)

	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies`+w.String(), w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// companyScope applies Scope to the companies table, where the company id
// is the primary key rather than a company_id column.
func companyScope(w *where, s repository.Scope) {
	if s.TenantID != nil {
		w.add("tenant_id = ?", *s.TenantID)
	}
	if s.CompanyID != nil {
		w.add("id = ?", *s.CompanyID)
	}
}

func (s *CompanyStore) List(ctx context.Context, f repository.ListFilter) ([]models.Company, int, error) {
	var w where
	companyScope(&w, f.Scope)
	w.search(f.Search, "name", "email", "industry")
	if f.IsActive != nil {
		w.add("is_active = ?", *f.IsActive)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM companies`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}

	query := `SELECT ` + companyColumns + ` FROM companies` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset())

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	companies := make([]models.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, total, nil
}

func (s *CompanyStore) Update(ctx context.Context, scope repository.Scope, c *models.Company) (*models.Company, error) {
	var w where
	w.add("id = ?", c.ID)
	companyScope(&w, scope)

	query := fmt.Sprintf(`
		UPDATE companies
		SET name = %s, email = %s, phone = %s, website = %s, industry = %s, address = %s,
			plan = %s, max_users = %s, is_active = %s, settings = %s, updated_at = now()`,
		w.next(c.Name), w.next(c.Email), w.next(c.Phone), w.next(c.Website), w.next(c.Industry),
		w.next(c.Address), w.next(c.Plan), w.next(c.MaxUsers), w.next(c.IsActive), w.next(c.Settings),
	) + w.String() + ` RETURNING ` + companyColumns

	out, err := scanCompany(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update company: %w", err)
	}
	return out, nil
}

func (s *CompanyStore) Deactivate(ctx context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	var w where
	w.add("id = ?", id)
	companyScope(&w, scope)

	tag, err := s.pool.Exec(ctx, `UPDATE companies SET is_active = false, updated_at = now()`+w.String(), w.args...)
	if err != nil {
		return false, fmt.Errorf("deactivate company: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CompanyStore) ReserveSeat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE companies SET current_users = current_users + 1, updated_at = now()
		WHERE id = $1 AND current_users < max_users`, id)
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSeatLimit
	}
	return nil
}

func (s *CompanyStore) ReleaseSeat(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE companies SET current_users = current_users - 1, updated_at = now()
		WHERE id = $1 AND current_users > 0`, id)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

// Sync upserts the reference roles.
func (s *RoleStore) Sync(ctx context.Context, roles []models.Role) error {
	batch := &pgx.Batch{}
	for _, r := range roles {
		batch.Queue(`
			INSERT INTO roles (name, display_name, permissions) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name, permissions = EXCLUDED.permissions`,
			r.Name, r.DisplayName, r.Permissions)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("sync roles: %w", err)
	}
	return nil
}

func (s *RoleStore) List(ctx context.Context) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, display_name, permissions FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]models.Role, 0)
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.Name, &r.DisplayName, &r.Permissions); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

func (s *RoleStore) GetByName(ctx context.Context, name models.RoleName) (*models.Role, error) {
	var r models.Role
	err := s.pool.QueryRow(ctx, `SELECT name, display_name, permissions FROM roles WHERE name = $1`, name).
		Scan(&r.Name, &r.DisplayName, &r.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &r, nil
}
