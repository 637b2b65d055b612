package notification

import (
	"context"
	"time"
)

// Repository defines persistence operations for notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*Notification, error)

	// UpdateStatus moves a notification to the given status. readAt is
	// recorded when transitioning to read.
	UpdateStatus(ctx context.Context, id int64, status Status, readAt time.Time) error
}

// PreferenceRepository defines persistence for per-owner, per-type
// delivery preferences. Absent records mean system defaults.
type PreferenceRepository interface {
	Get(ctx context.Context, ownerID int64, typ Type) (*Preference, error)
	Upsert(ctx context.Context, p *Preference) error
}
