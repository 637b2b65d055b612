package database

import (
	"context"
	"database/sql"
	"fmt"

	"finance_notification_service/internal/domain/notification"
)

type PostgresPreferenceRepository struct {
	db *sql.DB
}

func NewPostgresPreferenceRepository(db *sql.DB) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{db: db}
}

func (r *PostgresPreferenceRepository) Get(ctx context.Context, ownerID int64, typ notification.Type) (*notification.Preference, error) {
	query := `SELECT id, owner_id, notification_type, in_app_enabled, email_enabled, push_enabled, telegram_enabled, min_priority
               FROM notification_preferences
               WHERE owner_id = $1 AND notification_type = $2`
	p := notification.Preference{}
	err := r.db.QueryRowContext(ctx, query, ownerID, typ).Scan(
		&p.ID, &p.OwnerID, &p.Type, &p.InAppEnabled, &p.EmailEnabled,
		&p.PushEnabled, &p.TelegramEnabled, &p.MinPriority,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("error getting notification preference: %w", err)
	}
	return &p, nil
}

// Upsert writes the preference, replacing any existing record for the
// same owner and type. Preferences are never deleted; disabling every
// channel is how an owner opts out.
func (r *PostgresPreferenceRepository) Upsert(ctx context.Context, p *notification.Preference) error {
	query := `INSERT INTO notification_preferences
               (owner_id, notification_type, in_app_enabled, email_enabled, push_enabled, telegram_enabled, min_priority)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               ON CONFLICT (owner_id, notification_type) DO UPDATE
               SET in_app_enabled = EXCLUDED.in_app_enabled,
                   email_enabled = EXCLUDED.email_enabled,
                   push_enabled = EXCLUDED.push_enabled,
                   telegram_enabled = EXCLUDED.telegram_enabled,
                   min_priority = EXCLUDED.min_priority
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		p.OwnerID, p.Type, p.InAppEnabled, p.EmailEnabled, p.PushEnabled, p.TelegramEnabled, p.MinPriority,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("error upserting notification preference: %w", err)
	}
	return nil
}
