package ledger

import (
	"context"
	"database/sql"
	"time"

	"finance_notification_service/internal/domain/recurring"

	"github.com/shopspring/decimal"
)

// Event is a concrete ledger entry produced from a recurring
// definition's due window. Corresponds to the 'ledger_events' table.
//
// SourceDefinitionID is a weak back-reference: an ID for lookups only,
// never an owning link, so a definition's lifecycle does not cascade
// through historical events.
type Event struct {
	ID                 int64
	OwnerID            int64
	Amount             decimal.Decimal
	Kind               recurring.FlowKind
	Category           string
	Description        sql.NullString
	OccurredAt         time.Time
	SourceDefinitionID sql.NullInt64
	CreatedAt          time.Time
}

// Repository defines persistence operations for ledger events.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*Event, error)
	ListBySourceDefinition(ctx context.Context, definitionID int64) ([]*Event, error)
}
