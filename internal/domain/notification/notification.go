package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type identifies what a notification is about.
type Type string

const (
	TypeTransaction          Type = "transaction"
	TypeRecurringTransaction Type = "recurring_transaction"
	TypeBudgetAlert          Type = "budget_alert"
	TypeSavingsGoal          Type = "savings_goal"
	TypeFinancialHealth      Type = "financial_health"
)

// Priority orders notifications LOW < MEDIUM < HIGH. Preferences
// suppress channel delivery below a minimum priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns the ordinal used for minimum-priority comparisons.
// Unknown values rank below LOW so they never pass a preference gate.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Status is the recipient-facing lifecycle state.
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

// Notification is a persisted alert for one owner. Corresponds to the
// 'notifications' table. DeliveryKey is the idempotent identifier
// handed to external channels (email, push) so receivers can dedup
// at-least-once delivery.
type Notification struct {
	ID          int64
	OwnerID     int64
	DeliveryKey uuid.UUID
	Type        Type
	Priority    Priority
	Status      Status
	Title       string
	Message     string
	Payload     map[string]any
	CreatedAt   time.Time
	ReadAt      sql.NullTime
	ExpiresAt   sql.NullTime
}

// ExpiredBy reports whether the notification's expiry has passed.
// Expiry is enforced at read time, not by a background sweep.
func (n *Notification) ExpiredBy(now time.Time) bool {
	return n.ExpiresAt.Valid && n.ExpiresAt.Time.Before(now)
}

// Envelope is the wire message pushed over a live connection.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// View is the notification shape surfaced to clients.
type View struct {
	ID        int64          `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Status    Status         `json:"status"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

// AsView converts a notification to its client-facing shape.
func (n *Notification) AsView() View {
	v := View{
		ID:        n.ID,
		Type:      n.Type,
		Priority:  n.Priority,
		Status:    n.Status,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Payload,
		CreatedAt: n.CreatedAt,
	}
	if n.ReadAt.Valid {
		t := n.ReadAt.Time
		v.ReadAt = &t
	}
	if n.ExpiresAt.Valid {
		t := n.ExpiresAt.Time
		v.ExpiresAt = &t
	}
	return v
}
