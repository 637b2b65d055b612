package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finance_notification_service/internal/domain/notification"
)

// Custom errors specific to the notification repositories.
var (
	ErrNotificationNotFound = fmt.Errorf("notification not found")
	ErrPreferenceNotFound   = fmt.Errorf("notification preference not found")
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	payload, err := marshalPayload(n.Payload)
	if err != nil {
		return err
	}
	query := `INSERT INTO notifications
               (owner_id, delivery_key, notification_type, priority, status, title, message, payload, expires_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		n.OwnerID, n.DeliveryKey, n.Type, n.Priority, n.Status, n.Title, n.Message, payload, n.ExpiresAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	query := `SELECT id, owner_id, delivery_key, notification_type, priority, status, title, message, payload, created_at, read_at, expires_at
               FROM notifications WHERE id = $1`
	n := notification.Notification{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.OwnerID, &n.DeliveryKey, &n.Type, &n.Priority, &n.Status,
		&n.Title, &n.Message, &payload, &n.CreatedAt, &n.ReadAt, &n.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("error getting notification by ID: %w", err)
	}
	if err := unmarshalPayload(payload, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *PostgresNotificationRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*notification.Notification, error) {
	query := `SELECT id, owner_id, delivery_key, notification_type, priority, status, title, message, payload, created_at, read_at, expires_at
               FROM notifications
               WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications by owner: %w", err)
	}
	defer rows.Close()

	notifications := make([]*notification.Notification, 0)
	for rows.Next() {
		n := notification.Notification{}
		var payload []byte
		if err := rows.Scan(
			&n.ID, &n.OwnerID, &n.DeliveryKey, &n.Type, &n.Priority, &n.Status,
			&n.Title, &n.Message, &payload, &n.CreatedAt, &n.ReadAt, &n.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		if err := unmarshalPayload(payload, &n); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return notifications, nil
}

func (r *PostgresNotificationRepository) UpdateStatus(ctx context.Context, id int64, status notification.Status, readAt time.Time) error {
	var nullableReadAt sql.NullTime
	if !readAt.IsZero() {
		nullableReadAt = sql.NullTime{Time: readAt, Valid: true}
	}
	query := `UPDATE notifications
               SET status = $1, read_at = COALESCE($2, read_at)
               WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, nullableReadAt, id)
	if err != nil {
		return fmt.Errorf("error updating notification status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading status update result: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling notification payload: %w", err)
	}
	return data, nil
}

func unmarshalPayload(data []byte, n *notification.Notification) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &n.Payload); err != nil {
		return fmt.Errorf("error unmarshaling notification payload: %w", err)
	}
	return nil
}
