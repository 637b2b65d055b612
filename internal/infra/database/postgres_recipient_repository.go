package database

import (
	"context"
	"database/sql"
	"fmt"

	"finance_notification_service/internal/domain/recipient"
)

// Custom errors specific to the recipient repositories.
var ErrRecipientNotFound = fmt.Errorf("recipient not found")

type PostgresRecipientRepository struct {
	db *sql.DB
}

func NewPostgresRecipientRepository(db *sql.DB) *PostgresRecipientRepository {
	return &PostgresRecipientRepository{db: db}
}

func (r *PostgresRecipientRepository) GetByID(ctx context.Context, id int64) (*recipient.Recipient, error) {
	query := `SELECT id, email, telegram_chat_id, is_active, created_at, updated_at
               FROM recipients WHERE id = $1`
	rcpt := recipient.Recipient{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rcpt.ID, &rcpt.Email, &rcpt.TelegramChatID, &rcpt.IsActive, &rcpt.CreatedAt, &rcpt.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("error getting recipient by ID: %w", err)
	}
	return &rcpt, nil
}

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// Register records a push device, reactivating and refreshing it when
// the same token is registered again.
func (r *PostgresDeviceRepository) Register(ctx context.Context, d *recipient.Device) error {
	query := `INSERT INTO recipient_devices (recipient_id, token, platform, is_active, last_active_at)
               VALUES ($1, $2, $3, TRUE, NOW())
               ON CONFLICT (token) DO UPDATE
               SET recipient_id = EXCLUDED.recipient_id,
                   platform = EXCLUDED.platform,
                   is_active = TRUE,
                   last_active_at = NOW()
               RETURNING id, is_active, last_active_at, created_at`
	err := r.db.QueryRowContext(ctx, query, d.RecipientID, d.Token, d.Platform).
		Scan(&d.ID, &d.IsActive, &d.LastActiveAt, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("error registering device: %w", err)
	}
	return nil
}

func (r *PostgresDeviceRepository) Unregister(ctx context.Context, recipientID int64, token string) error {
	query := `UPDATE recipient_devices
               SET is_active = FALSE, last_active_at = NOW()
               WHERE recipient_id = $1 AND token = $2`
	if _, err := r.db.ExecContext(ctx, query, recipientID, token); err != nil {
		return fmt.Errorf("error unregistering device: %w", err)
	}
	return nil
}

func (r *PostgresDeviceRepository) ListActive(ctx context.Context, recipientID int64) ([]*recipient.Device, error) {
	query := `SELECT id, recipient_id, token, platform, is_active, last_active_at, created_at
               FROM recipient_devices
               WHERE recipient_id = $1 AND is_active = TRUE ORDER BY last_active_at DESC`
	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("error listing active devices: %w", err)
	}
	defer rows.Close()

	devices := make([]*recipient.Device, 0)
	for rows.Next() {
		d := recipient.Device{}
		if err := rows.Scan(&d.ID, &d.RecipientID, &d.Token, &d.Platform, &d.IsActive, &d.LastActiveAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning device row: %w", err)
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}
	return devices, nil
}

func (r *PostgresDeviceRepository) Deactivate(ctx context.Context, token string) error {
	query := `UPDATE recipient_devices SET is_active = FALSE WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("error deactivating device: %w", err)
	}
	return nil
}
