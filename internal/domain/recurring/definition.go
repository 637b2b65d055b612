package recurring

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// FlowKind distinguishes money coming in from money going out.
type FlowKind string

const (
	FlowIncome  FlowKind = "income"
	FlowExpense FlowKind = "expense"
)

// IntervalKind is the recurrence cadence of a definition.
type IntervalKind string

const (
	IntervalDaily     IntervalKind = "daily"
	IntervalWeekly    IntervalKind = "weekly"
	IntervalBiweekly  IntervalKind = "biweekly"
	IntervalMonthly   IntervalKind = "monthly"
	IntervalQuarterly IntervalKind = "quarterly"
	IntervalYearly    IntervalKind = "yearly"
)

// Valid reports whether k is one of the known interval kinds.
func (k IntervalKind) Valid() bool {
	switch k {
	case IntervalDaily, IntervalWeekly, IntervalBiweekly, IntervalMonthly, IntervalQuarterly, IntervalYearly:
		return true
	}
	return false
}

// Definition represents an open-ended recurring payment or income.
// Corresponds to the 'recurring_definitions' table.
//
// Schedule fields (LastGeneratedAt, NextDueAt, IsActive) are owned by
// the schedule processor once the definition exists; user updates go
// through the definition service, which recomputes NextDueAt.
type Definition struct {
	ID              int64
	OwnerID         int64
	Amount          decimal.Decimal
	Kind            FlowKind
	Category        string
	Description     sql.NullString
	Interval        IntervalKind
	StartDate       time.Time
	EndDate         sql.NullTime
	LastGeneratedAt sql.NullTime
	NextDueAt       time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DueBy reports whether the definition has an unprocessed due window
// at or before now.
func (d *Definition) DueBy(now time.Time) bool {
	return d.IsActive && !d.NextDueAt.After(now)
}
