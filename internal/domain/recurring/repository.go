package recurring

import (
	"context"
	"database/sql"
	"time"
)

// Claim carries the schedule fields written by a successful optimistic
// claim. LastGeneratedAt is the due instant just processed, NextDueAt
// the newly computed one; IsActive drops to false when NextDueAt would
// pass the definition's end date.
type Claim struct {
	LastGeneratedAt time.Time
	NextDueAt       time.Time
	IsActive        bool
}

// Repository defines persistence operations for recurring definitions.
type Repository interface {
	Create(ctx context.Context, d *Definition) error
	GetByID(ctx context.Context, id int64) (*Definition, error)
	Update(ctx context.Context, d *Definition) error
	ListByOwner(ctx context.Context, ownerID int64) ([]*Definition, error)

	// ListDue returns active definitions whose NextDueAt is at or
	// before now and whose end date (if set) has not passed the due
	// window.
	ListDue(ctx context.Context, now time.Time) ([]*Definition, error)

	// TryClaim conditionally applies the claim, succeeding only if the
	// stored NextDueAt still equals expectedNextDue. A false return
	// with nil error means another worker already advanced this window.
	TryClaim(ctx context.Context, id int64, expectedNextDue time.Time, claim Claim) (bool, error)
}

// NullTime builds a valid sql.NullTime; zero-argument callers should
// use the zero value instead.
func NullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
