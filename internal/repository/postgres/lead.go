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
	"github.com/shopspring/decimal"
)

const leadColumns = `id, tenant_id, company_id, name, email, phone, company_name, industry, job_title,
	status, priority, source, estimated_value, currency, probability, expected_close_date,
	assigned_to, address, tags, converted_to_client, converted_date, converted_client,
	notes, activities, created_by, created_at, updated_at`

type LeadStore struct {
	pool *pgxpool.Pool
}

func NewLeadStore(pool *pgxpool.Pool) *LeadStore {
	return &LeadStore{pool: pool}
}

func scanLead(row scanner) (*models.Lead, error) {
	var l models.Lead
	err := row.Scan(
		&l.ID,
		&l.TenantID,
		&l.CompanyID,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.CompanyName,
		&l.Industry,
		&l.JobTitle,
		&l.Status,
		&l.Priority,
		&l.Source,
		&l.EstimatedValue,
		&l.Currency,
		&l.Probability,
		&l.ExpectedCloseDate,
		&l.AssignedTo,
		&l.Address,
		&l.Tags,
		&l.ConvertedToClient,
		&l.ConvertedDate,
		&l.ConvertedClient,
		&l.Notes,
		&l.Activities,
		&l.CreatedBy,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LeadStore) Create(ctx context.Context, l *models.Lead) (*models.Lead, error) {
	query := `
		INSERT INTO leads (tenant_id, company_id, name, email, phone, company_name, industry, job_title,
			status, priority, source, estimated_value, currency, probability, expected_close_date,
			assigned_to, address, tags, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), now())
		RETURNING ` + leadColumns

	out, err := scanLead(s.pool.QueryRow(ctx, query,
		l.TenantID, l.CompanyID, l.Name, l.Email, l.Phone, l.CompanyName, l.Industry, l.JobTitle,
		l.Status, l.Priority, l.Source, l.EstimatedValue, l.Currency, l.Probability, l.ExpectedCloseDate,
		l.AssignedTo, l.Address, nonNil(l.Tags), l.CreatedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return out, nil
}

func (s *LeadStore) GetByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (*models.Lead, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	l, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads`+w.String(), w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (s *LeadStore) List(ctx context.Context, f repository.ListFilter) ([]models.Lead, int, error) {
	var w where
	w.scope(f.Scope)
	w.search(f.Search, "name", "email", "company_name")
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Priority != "" {
		w.add("priority = ?", f.Priority)
	}
	if f.AssignedTo != nil {
		w.add("assigned_to = ?", *f.AssignedTo)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM leads`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	query := `SELECT ` + leadColumns + ` FROM leads` + w.String() +
		` ORDER BY created_at DESC LIMIT ` + w.next(f.Limit) + ` OFFSET ` + w.next(f.Offset())

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]models.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, total, nil
}

// Update never writes the conversion columns; only Convert does.
func (s *LeadStore) Update(ctx context.Context, scope repository.Scope, l *models.Lead) (*models.Lead, error) {
	var w where
	w.add("id = ?", l.ID)
	w.scope(scope)

	query := fmt.Sprintf(`
		UPDATE leads
		SET name = %s, email = %s, phone = %s, company_name = %s, industry = %s, job_title = %s,
			status = %s, priority = %s, source = %s, estimated_value = %s, currency = %s,
			probability = %s, expected_close_date = %s, assigned_to = %s, address = %s, tags = %s,
			updated_at = now()`,
		w.next(l.Name), w.next(l.Email), w.next(l.Phone), w.next(l.CompanyName), w.next(l.Industry),
		w.next(l.JobTitle), w.next(l.Status), w.next(l.Priority), w.next(l.Source),
		w.next(l.EstimatedValue), w.next(l.Currency), w.next(l.Probability), w.next(l.ExpectedCloseDate),
		w.next(l.AssignedTo), w.next(l.Address), w.next(nonNil(l.Tags)),
	) + w.String() + ` RETURNING ` + leadColumns

	out, err := scanLead(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return out, nil
}

func (s *LeadStore) Delete(ctx context.Context, scope repository.Scope, id uuid.UUID) (bool, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	tag, err := s.pool.Exec(ctx, `DELETE FROM leads`+w.String(), w.args...)
	if err != nil {
		return false, fmt.Errorf("delete lead: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *LeadStore) AppendNote(ctx context.Context, scope repository.Scope, id uuid.UUID, note models.Note) (*models.Lead, error) {
	return s.appendTo(ctx, scope, id, "notes", []models.Note{note})
}

func (s *LeadStore) AppendActivity(ctx context.Context, scope repository.Scope, id uuid.UUID, activity models.Activity) (*models.Lead, error) {
	return s.appendTo(ctx, scope, id, "activities", []models.Activity{activity})
}

// appendTo concatenates onto a jsonb array column. column is always a
// constant from this file.
func (s *LeadStore) appendTo(ctx context.Context, scope repository.Scope, id uuid.UUID, column string, items any) (*models.Lead, error) {
	var w where
	w.add("id = ?", id)
	w.scope(scope)

	query := `UPDATE leads SET ` + column + ` = ` + column + ` || ` + w.next(items) + `::jsonb, updated_at = now()` +
		w.String() + ` RETURNING ` + leadColumns

	out, err := scanLead(s.pool.QueryRow(ctx, query, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("append lead %s: %w", column, err)
	}
	return out, nil
}

// Convert runs the compare-and-set and the client insert in one
// transaction. The UPDATE's WHERE re-checks converted_to_client after
// acquiring the row lock, so of N concurrent callers exactly one sees a
// returned row; the rest fall through to ErrAlreadyConverted.
//
// Why a conditional UPDATE instead of SELECT ... FOR UPDATE and a check
// in Go?
//   - It is one round trip, and the condition is evaluated by Postgres
//     under the row lock, so there is no window between read and write.
//   - A loser blocks on the lock until the winner commits, then re-reads
//     converted_to_client = true and matches nothing.
//
// Why one transaction for both writes?
//   - A lead marked converted without its client, or a client without
//     the flag, would be visible to other readers otherwise. If the
//     insert fails the flag is rolled back and the lead can be converted
//     again.
func (s *LeadStore) Convert(ctx context.Context, scope repository.Scope, id uuid.UUID, convertedBy uuid.UUID, now time.Time) (*models.Lead, *models.Client, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin convert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var w where
	w.add("id = ?", id)
	w.scope(scope)
	w.add("converted_to_client = ?", false)

	query := `UPDATE leads SET converted_to_client = true, converted_date = ` + w.next(now) +
		`, updated_at = now()` + w.String() + ` RETURNING ` + leadColumns

	lead, err := scanLead(tx.QueryRow(ctx, query, w.args...))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("mark lead converted: %w", err)
		}
		// No row: either missing/out of scope, or already converted.
		existing, getErr := s.GetByID(ctx, scope, id)
		if getErr != nil {
			return nil, nil, getErr
		}
		if existing == nil {
			return nil, nil, nil
		}
		return nil, nil, repository.ErrAlreadyConverted
	}

	client, err := insertClient(ctx, tx, lead.ToClient(convertedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, repository.ErrAlreadyConverted
		}
		return nil, nil, fmt.Errorf("insert converted client: %w", err)
	}

	lead.ConvertedClient = &client.ID
	if _, err := tx.Exec(ctx, `UPDATE leads SET converted_client = $2 WHERE id = $1`, lead.ID, client.ID); err != nil {
		return nil, nil, fmt.Errorf("link converted client: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit convert: %w", err)
	}
	return lead, client, nil
}

func (s *LeadStore) Stats(ctx context.Context, scope repository.Scope) (*models.LeadStats, error) {
	var w where
	w.scope(scope)

	query := `
		SELECT status, count(*),
			count(*) FILTER (WHERE converted_to_client),
			coalesce(sum(estimated_value), 0),
			coalesce(sum(estimated_value * probability / 100), 0)
		FROM leads` + w.String() + ` GROUP BY status`

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	defer rows.Close()

	stats := &models.LeadStats{ByStatus: map[string]int64{}, PipelineValue: decimal.Zero, WeightedPipeline: decimal.Zero}
	for rows.Next() {
		var status string
		var n, converted int64
		var value, weighted decimal.Decimal
		if err := rows.Scan(&status, &n, &converted, &value, &weighted); err != nil {
			return nil, fmt.Errorf("scan lead stats: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
		stats.Converted += converted
		if models.LeadStatus(status).Open() {
			stats.PipelineValue = stats.PipelineValue.Add(value)
			stats.WeightedPipeline = stats.WeightedPipeline.Add(weighted)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead stats: %w", err)
	}
	return stats, nil
}
