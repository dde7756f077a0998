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

const userColumns = `id, tenant_id, company_id, role, name, email, password_hash, phone,
	is_active, last_login, created_at, updated_at`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.CompanyID,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.IsActive,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (tenant_id, company_id, role, name, email, password_hash, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, lower($5), $6, $7, $8, now(), now())
		RETURNING ` + userColumns

	out, err := scanUser(s.pool.QueryRow(ctx, query,
		u.TenantID, u.CompanyID, u.Role, u.Name, u.Email, u.PasswordHash, u.Phone, u.IsActive,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (s *UserStore) GetByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (*models.User, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)
	return s.getOne(ctx, &w)
}

func (s *UserStore) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	var w where
	w.add("tenant_id = ?", tenantID)
	w.add("email = lower(?)", email)
	return s.getOne(ctx, &w)
}

func (s *UserStore) FindSuperAdminByEmail(ctx context.Context, email string) (*models.User, error) {
	var w where
	w.add("tenant_id IS NULL AND role = ?", models.RoleSuperAdmin)
	w.add("email = lower(?)", email)
	return s.getOne(ctx, &w)
}

func (s *UserStore) getOne(ctx context.Context, w *where) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users`+w.String(), w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) FindAllByEmail(ctx context.Context, email string) ([]models.User, error) {
	users, _, err := s.query(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
	return users, err
}

func (s *UserStore) List(ctx context.Context, f repository.ListFilter) ([]models.User, int, error) {
	var w where
	w.scope(f.Scope)
	w.search(f.Search, "name", "email")
	if f.Role != "" {
		w.add("role = ?", f.Role)
	}
	if f.IsActive != nil {
		w.add("is_active = ?", *f.IsActive)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	users, _, err := s.query(ctx, `SELECT `+userColumns+` FROM users`+w.String()+
		` ORDER BY created_at DESC LIMIT `+w.next(f.Limit)+` OFFSET `+w.next(f.Offset()), w.args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *UserStore) query(ctx context.Context, query string, args ...any) ([]models.User, int, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, len(users), nil
}

func (s *UserStore) Update(ctx context.Context, scope repository.Scope, u *models.User) (*models.User, error) {
	var w where
	w.add("id = ?", u.ID)
	w.scope(scope)

	query := fmt.Sprintf(`
		UPDATE users SET name = %s, email = lower(%s), phone = %s, role = %s, is_active = %s, updated_at = now()`,
		w.next(u.Name), w.next(u.Email), w.next(u.Phone), w.next(u.Role), w.next(u.IsActive),
	) + w.String() + ` RETURNING ` + userColumns

	out, err := scanUser(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return out, nil
}

func (s *UserStore) Delete(ctx context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	tag, err := s.pool.Exec(ctx, `DELETE FROM users`+w.String(), w.args...)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
