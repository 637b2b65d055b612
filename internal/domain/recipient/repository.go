package recipient

import (
	"context"
)

// Repository defines persistence operations for recipients.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Recipient, error)
}

// DeviceRepository defines persistence for push device registrations.
type DeviceRepository interface {
	Register(ctx context.Context, d *Device) error
	Unregister(ctx context.Context, recipientID int64, token string) error
	ListActive(ctx context.Context, recipientID int64) ([]*Device, error)

	// Deactivate marks a token inactive after the push gateway reports
	// it invalid, so it is not retried on the next send.
	Deactivate(ctx context.Context, token string) error
}
