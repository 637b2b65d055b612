package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finance_notification_service/internal/domain/recurring"
)

// Custom errors specific to the definition repository.
var ErrDefinitionNotFound = fmt.Errorf("recurring definition not found")

type PostgresDefinitionRepository struct {
	db *sql.DB
}

func NewPostgresDefinitionRepository(db *sql.DB) *PostgresDefinitionRepository {
	return &PostgresDefinitionRepository{db: db}
}

const definitionColumns = `id, owner_id, amount, kind, category, description, recurrence_interval,
               start_date, end_date, last_generated_at, next_due_at, is_active, created_at, updated_at`

func (r *PostgresDefinitionRepository) Create(ctx context.Context, d *recurring.Definition) error {
	query := `INSERT INTO recurring_definitions
               (owner_id, amount, kind, category, description, recurrence_interval, start_date, end_date, next_due_at, is_active)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		d.OwnerID, d.Amount, d.Kind, d.Category, d.Description, d.Interval,
		d.StartDate, d.EndDate, d.NextDueAt, d.IsActive,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating recurring definition: %w", err)
	}
	return nil
}

func (r *PostgresDefinitionRepository) GetByID(ctx context.Context, id int64) (*recurring.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions WHERE id = $1`
	d := recurring.Definition{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.OwnerID, &d.Amount, &d.Kind, &d.Category, &d.Description, &d.Interval,
		&d.StartDate, &d.EndDate, &d.LastGeneratedAt, &d.NextDueAt, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("error getting recurring definition by ID: %w", err)
	}
	return &d, nil
}

func (r *PostgresDefinitionRepository) Update(ctx context.Context, d *recurring.Definition) error {
	query := `UPDATE recurring_definitions
               SET amount = $1, category = $2, description = $3, recurrence_interval = $4,
                   end_date = $5, next_due_at = $6, is_active = $7, updated_at = NOW()
               WHERE id = $8
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		d.Amount, d.Category, d.Description, d.Interval, d.EndDate, d.NextDueAt, d.IsActive, d.ID,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrDefinitionNotFound
		}
		return fmt.Errorf("error updating recurring definition: %w", err)
	}
	return nil
}

func (r *PostgresDefinitionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*recurring.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions
               WHERE owner_id = $1 ORDER BY next_due_at`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing definitions by owner: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (r *PostgresDefinitionRepository) ListDue(ctx context.Context, now time.Time) ([]*recurring.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions
               WHERE is_active = TRUE
                 AND next_due_at <= $1
                 AND (end_date IS NULL OR end_date >= next_due_at)
               ORDER BY next_due_at ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error listing due definitions: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// TryClaim conditionally advances the schedule. The WHERE clause on
// next_due_at makes the update an optimistic claim: when a concurrent
// worker already advanced this window, zero rows match and the claim
// reports a conflict instead of generating a duplicate.
func (r *PostgresDefinitionRepository) TryClaim(ctx context.Context, id int64, expectedNextDue time.Time, claim recurring.Claim) (bool, error) {
	query := `UPDATE recurring_definitions
               SET last_generated_at = $1, next_due_at = $2, is_active = $3, updated_at = NOW()
               WHERE id = $4 AND next_due_at = $5`
	res, err := r.db.ExecContext(ctx, query,
		claim.LastGeneratedAt, claim.NextDueAt, claim.IsActive, id, expectedNextDue,
	)
	if err != nil {
		return false, fmt.Errorf("error claiming recurring definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading claim result: %w", err)
	}
	return affected == 1, nil
}

func scanDefinitions(rows *sql.Rows) ([]*recurring.Definition, error) {
	definitions := make([]*recurring.Definition, 0)
	for rows.Next() {
		d := recurring.Definition{}
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.Amount, &d.Kind, &d.Category, &d.Description, &d.Interval,
			&d.StartDate, &d.EndDate, &d.LastGeneratedAt, &d.NextDueAt, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning recurring definition row: %w", err)
		}
		definitions = append(definitions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring definition rows: %w", err)
	}
	return definitions, nil
}
