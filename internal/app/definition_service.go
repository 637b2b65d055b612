package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finance_notification_service/internal/domain/recurring"

	"github.com/shopspring/decimal"
)

// Validation errors surfaced to the definition owner at create/update
// time. These are the only errors that ever reach a user; everything
// during background processing is recovered locally.
var (
	ErrNonPositiveAmount  = fmt.Errorf("amount must be positive")
	ErrUnknownFlowKind    = fmt.Errorf("kind must be income or expense")
	ErrEmptyCategory      = fmt.Errorf("category must not be empty")
	ErrEndBeforeStart     = fmt.Errorf("end date must not precede start date")
	ErrDefinitionNotOwned = fmt.Errorf("definition does not belong to this owner")
)

// CreateDefinitionInput carries the user-supplied fields for a new
// recurring definition.
type CreateDefinitionInput struct {
	OwnerID     int64
	Amount      decimal.Decimal
	Kind        recurring.FlowKind
	Category    string
	Description string
	Interval    recurring.IntervalKind
	StartDate   time.Time
	EndDate     sql.NullTime
}

// UpdateDefinitionInput carries optional field updates; nil pointers
// leave the stored value untouched.
type UpdateDefinitionInput struct {
	Amount   *decimal.Decimal
	Category *string
	Interval *recurring.IntervalKind
	EndDate  *sql.NullTime
}

// DefinitionService is the user-facing surface over recurring
// definitions. Schedule advancement belongs to the ScheduleProcessor;
// this service only seeds and recomputes NextDueAt on user edits.
type DefinitionService struct {
	definitions recurring.Repository
}

func NewDefinitionService(definitions recurring.Repository) *DefinitionService {
	return &DefinitionService{definitions: definitions}
}

// Create validates and persists a new definition. NextDueAt is seeded
// with the start date itself, so the first tick at or after the start
// date generates the first ledger event.
func (s *DefinitionService) Create(ctx context.Context, in CreateDefinitionInput) (*recurring.Definition, error) {
	if err := validateDefinitionInput(in.Amount, in.Kind, in.Category, in.Interval, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	def := &recurring.Definition{
		OwnerID:   in.OwnerID,
		Amount:    in.Amount,
		Kind:      in.Kind,
		Category:  in.Category,
		Interval:  in.Interval,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		NextDueAt: in.StartDate,
		IsActive:  true,
	}
	if in.Description != "" {
		def.Description = sql.NullString{String: in.Description, Valid: true}
	}

	if err := s.definitions.Create(ctx, def); err != nil {
		return nil, fmt.Errorf("creating definition: %w", err)
	}
	return def, nil
}

// Update applies user edits. Changing the interval recomputes
// NextDueAt from the start date, rolled forward past everything
// already generated so no occurrence is duplicated or dropped.
func (s *DefinitionService) Update(ctx context.Context, id, ownerID int64, in UpdateDefinitionInput) (*recurring.Definition, error) {
	def, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.OwnerID != ownerID {
		return nil, ErrDefinitionNotOwned
	}

	intervalChanged := false
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, ErrNonPositiveAmount
		}
		def.Amount = *in.Amount
	}
	if in.Category != nil {
		if *in.Category == "" {
			return nil, ErrEmptyCategory
		}
		def.Category = *in.Category
	}
	if in.Interval != nil && *in.Interval != def.Interval {
		if !in.Interval.Valid() {
			return nil, fmt.Errorf("%w: %q", recurring.ErrUnknownInterval, *in.Interval)
		}
		def.Interval = *in.Interval
		intervalChanged = true
	}
	if in.EndDate != nil {
		if in.EndDate.Valid && in.EndDate.Time.Before(def.StartDate) {
			return nil, ErrEndBeforeStart
		}
		def.EndDate = *in.EndDate
	}

	if intervalChanged {
		next, err := s.recomputeNextDue(def)
		if err != nil {
			return nil, err
		}
		def.NextDueAt = next
	}

	// Re-evaluate activity against the (possibly new) end date.
	def.IsActive = !def.EndDate.Valid || !def.NextDueAt.After(def.EndDate.Time)

	if err := s.definitions.Update(ctx, def); err != nil {
		return nil, fmt.Errorf("updating definition: %w", err)
	}
	return def, nil
}

// recomputeNextDue replays the new interval from the start date until
// strictly past the last generated occurrence.
func (s *DefinitionService) recomputeNextDue(def *recurring.Definition) (time.Time, error) {
	next := def.StartDate
	if !def.LastGeneratedAt.Valid {
		return next, nil
	}
	for !next.After(def.LastGeneratedAt.Time) {
		advanced, err := recurring.NextOccurrence(next, def.Interval, def.StartDate.Day())
		if err != nil {
			return time.Time{}, err
		}
		next = advanced
	}
	return next, nil
}

func (s *DefinitionService) Get(ctx context.Context, id, ownerID int64) (*recurring.Definition, error) {
	def, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.OwnerID != ownerID {
		return nil, ErrDefinitionNotOwned
	}
	return def, nil
}

func (s *DefinitionService) ListForOwner(ctx context.Context, ownerID int64) ([]*recurring.Definition, error) {
	return s.definitions.ListByOwner(ctx, ownerID)
}

// Deactivate stops future generation without touching historical
// events; deletion is an external API concern.
func (s *DefinitionService) Deactivate(ctx context.Context, id, ownerID int64) error {
	def, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if def.OwnerID != ownerID {
		return ErrDefinitionNotOwned
	}
	if !def.IsActive {
		return nil
	}
	def.IsActive = false
	return s.definitions.Update(ctx, def)
}

func validateDefinitionInput(amount decimal.Decimal, kind recurring.FlowKind, category string, interval recurring.IntervalKind, start time.Time, end sql.NullTime) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if kind != recurring.FlowIncome && kind != recurring.FlowExpense {
		return ErrUnknownFlowKind
	}
	if category == "" {
		return ErrEmptyCategory
	}
	if !interval.Valid() {
		return fmt.Errorf("%w: %q", recurring.ErrUnknownInterval, interval)
	}
	if start.IsZero() {
		return fmt.Errorf("start date must be set")
	}
	if end.Valid && end.Time.Before(start) {
		return ErrEndBeforeStart
	}
	return nil
}
