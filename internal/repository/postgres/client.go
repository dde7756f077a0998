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
	"github.com/shopspring/decimal"
)

const clientColumns = `id, tenant_id, company_id, name, email, phone, company_name, industry, job_title,
	status, value, currency, assigned_to, notes, address, tags, source, source_lead,
	last_contact, next_follow_up, created_by, created_at, updated_at`

type ClientStore struct {
	pool *pgxpool.Pool
}

func NewClientStore(pool *pgxpool.Pool) *ClientStore {
	return &ClientStore{pool: pool}
}

func scanClient(row scanner) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.CompanyID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.CompanyName,
		&c.Industry,
		&c.JobTitle,
		&c.Status,
		&c.Value,
		&c.Currency,
		&c.AssignedTo,
		&c.Notes,
		&c.Address,
		&c.Tags,
		&c.Source,
		&c.SourceLead,
		&c.LastContact,
		&c.NextFollowUp,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// insertClient is shared by Create and the lead conversion transaction.
func insertClient(ctx context.Context, q queryRower, c *models.Client) (*models.Client, error) {
	query := `
		INSERT INTO clients (tenant_id, company_id, name, email, phone, company_name, industry, job_title,
			status, value, currency, assigned_to, notes, address, tags, source, source_lead,
			last_contact, next_follow_up, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '[]', $13, $14, $15, $16, $17, $18, $19, now(), now())
		RETURNING ` + clientColumns

	return scanClient(q.QueryRow(ctx, query,
		c.TenantID, c.CompanyID, c.Name, c.Email, c.Phone, c.CompanyName, c.Industry, c.JobTitle,
		c.Status, c.Value, c.Currency, c.AssignedTo, c.Address, nonNil(c.Tags), c.Source, c.SourceLead,
		c.LastContact, c.NextFollowUp, c.CreatedBy,
	))
}

func (s *ClientStore) Create(ctx context.Context, c *models.Client) (*models.Client, error) {
	out, err := insertClient(ctx, s.pool, c)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return out, nil
}

func (s *ClientStore) GetByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (*models.Client, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	c, err := scanClient(s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients`+w.String(), w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *ClientStore) List(ctx context.Context, f repository.ListFilter) ([]models.Client, int, error) {
	var w where
	w.scope(f.Scope)
	w.search(f.Search, "name", "email", "company_name")
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.AssignedTo != nil {
		w.add("assigned_to = ?", *f.AssignedTo)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clients`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	query := `SELECT ` + clientColumns + ` FROM clients` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset())

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]models.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, total, nil
}

func (s *ClientStore) Update(ctx context.Context, scope repository.Scope, c *models.Client) (*models.Client, error) {
	var w where
	w.add("id = ?", c.ID)
	w.scope(scope)

	query := fmt.Sprintf(`
		UPDATE clients
		SET name = %s, email = %s, phone = %s, company_name = %s, industry = %s, job_title = %s,
			status = %s, value = %s, currency = %s, assigned_to = %s, address = %s, tags = %s,
			last_contact = %s, next_follow_up = %s, updated_at = now()`,
		w.next(c.Name), w.next(c.Email), w.next(c.Phone), w.next(c.CompanyName), w.next(c.Industry),
		w.next(c.JobTitle), w.next(c.Status), w.next(c.Value), w.next(c.Currency), w.next(c.AssignedTo),
		w.next(c.Address), w.next(nonNil(c.Tags)), w.next(c.LastContact), w.next(c.NextFollowUp),
	) + w.String() + ` RETURNING ` + clientColumns

	out, err := scanClient(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update client: %w", err)
	}
	return out, nil
}

func (s *ClientStore) Delete(ctx context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	tag, err := s.pool.Exec(ctx, `DELETE FROM clients`+w.String(), w.args...)
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendNote concatenates onto the jsonb array in a single statement, so
// concurrent appends never overwrite each other.
func (s *ClientStore) AppendNote(ctx context.Context, scope repository.Scope, id uuid.UUID, note models.Note) (*models.Client, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	query := `UPDATE clients SET notes = notes || ` + w.next([]models.Note{note}) + `::jsonb, updated_at = now()` +
		w.String() + ` RETURNING ` + clientColumns

	out, err := scanClient(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("append client note: %w", err)
	}
	return out, nil
}

func (s *ClientStore) Stats(ctx context.Context, scope repository.Scope) (*models.ClientStats, error) {
	var w where
	w.scope(scope)

	rows, err := s.pool.Query(ctx, `SELECT status, count(*), coalesce(sum(value), 0) FROM clients`+w.String()+` GROUP BY status`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("client stats: %w", err)
	}
	defer rows.Close()

	stats := &models.ClientStats{ByStatus: map[string]int64{}, TotalValue: decimal.Zero}
	for rows.Next() {
		var status string
		var n int64
		var value decimal.Decimal
		if err := rows.Scan(&status, &n, &value); err != nil {
			return nil, fmt.Errorf("scan client stats: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
		stats.TotalValue = stats.TotalValue.Add(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client stats: %w", err)
	}
	return stats, nil
}
