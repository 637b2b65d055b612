package recipient

import (
	"database/sql"
	"time"
)

// Recipient holds the contact surface for one notification owner.
// Corresponds to the 'recipients' table.
type Recipient struct {
	ID             int64
	Email          sql.NullString
	TelegramChatID sql.NullInt64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Device is a registered push target for a recipient. Corresponds to
// the 'recipient_devices' table.
type Device struct {
	ID           int64
	RecipientID  int64
	Token        string
	Platform     sql.NullString
	IsActive     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
}
