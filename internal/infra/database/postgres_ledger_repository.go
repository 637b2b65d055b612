package database

import (
	"context"
	"database/sql"
	"fmt"

	"finance_notification_service/internal/domain/ledger"
)

type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

const eventColumns = `id, owner_id, amount, kind, category, description, occurred_at, source_definition_id, created_at`

func (r *PostgresLedgerRepository) Create(ctx context.Context, e *ledger.Event) error {
	query := `INSERT INTO ledger_events
               (owner_id, amount, kind, category, description, occurred_at, source_definition_id)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		e.OwnerID, e.Amount, e.Kind, e.Category, e.Description, e.OccurredAt, e.SourceDefinitionID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating ledger event: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*ledger.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events
               WHERE owner_id = $1 ORDER BY occurred_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing ledger events by owner: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *PostgresLedgerRepository) ListBySourceDefinition(ctx context.Context, definitionID int64) ([]*ledger.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events
               WHERE source_definition_id = $1 ORDER BY occurred_at ASC`
	rows, err := r.db.QueryContext(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("error listing ledger events by source definition: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*ledger.Event, error) {
	events := make([]*ledger.Event, 0)
	for rows.Next() {
		e := ledger.Event{}
		if err := rows.Scan(
			&e.ID, &e.OwnerID, &e.Amount, &e.Kind, &e.Category, &e.Description,
			&e.OccurredAt, &e.SourceDefinitionID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning ledger event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger event rows: %w", err)
	}
	return events, nil
}
