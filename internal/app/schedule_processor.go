package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"finance_notification_service/internal/domain/delivery"
	"finance_notification_service/internal/domain/ledger"
	"finance_notification_service/internal/domain/notification"
	"finance_notification_service/internal/domain/recurring"

	"github.com/sirupsen/logrus"
)

// Announcement is one notification request handed to the dispatcher.
type Announcement struct {
	OwnerID   int64
	Type      notification.Type
	Priority  notification.Priority
	Title     string
	Message   string
	Payload   map[string]any
	ExpiresAt sql.NullTime
}

// Announcer creates and delivers a notification. The schedule
// processor depends on this interface so a dispatcher failure can
// never reach back into claim processing.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) (*notification.Notification, error)
}

// TickReport summarizes one execution of the due-definition scan.
type TickReport struct {
	Generated int
	Skipped   int
	Failed    []int64
}

// ScheduleProcessor advances due recurring definitions into ledger
// events. Claims are optimistic conditional updates, so any number of
// processor instances can tick concurrently without double-generating.
type ScheduleProcessor struct {
	definitions recurring.Repository
	events      ledger.Repository
	announcer   Announcer
	live        delivery.InAppSender
	logger      *logrus.Logger
	defTimeout  time.Duration
	workers     int
}

func NewScheduleProcessor(
	definitions recurring.Repository,
	events ledger.Repository,
	announcer Announcer,
	live delivery.InAppSender,
	logger *logrus.Logger,
	definitionTimeout time.Duration,
	workers int,
) *ScheduleProcessor {
	if workers < 1 {
		workers = 1
	}
	return &ScheduleProcessor{
		definitions: definitions,
		events:      events,
		announcer:   announcer,
		live:        live,
		logger:      logger,
		defTimeout:  definitionTimeout,
		workers:     workers,
	}
}

// Tick scans for due definitions and processes each one. Per-definition
// failures are collected in the report; only a failure to list
// candidates at all aborts the tick, and the next scheduled tick still
// fires independently of this one's outcome.
func (p *ScheduleProcessor) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	report := TickReport{Failed: []int64{}}

	due, err := p.definitions.ListDue(ctx, now)
	if err != nil {
		return report, fmt.Errorf("listing due definitions: %w", err)
	}
	if len(due) == 0 {
		return report, nil
	}
	p.logger.WithField("candidates", len(due)).Debug("processing due definitions")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.workers)
	)
	for _, def := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(def *recurring.Definition) {
			defer wg.Done()
			defer func() { <-sem }()

			generated, skipped, err := p.processDefinition(ctx, def, now)

			mu.Lock()
			report.Generated += generated
			report.Skipped += skipped
			if err != nil {
				report.Failed = append(report.Failed, def.ID)
			}
			mu.Unlock()

			if err != nil {
				p.logger.WithError(err).WithField("definition_id", def.ID).
					Error("definition processing failed; it remains due for the next tick")
			}
		}(def)
	}
	wg.Wait()

	if report.Generated > 0 && p.live != nil {
		p.live.Broadcast(notification.Envelope{
			Type:      "recurring_processed",
			Data:      map[string]any{"generated": report.Generated},
			Timestamp: time.Now().UTC(),
		})
	}
	return report, nil
}

// processDefinition walks one definition through every due window at
// or before now. Each window is its own claim and its own event, so a
// definition that missed several ticks catches up without gaps.
func (p *ScheduleProcessor) processDefinition(ctx context.Context, def *recurring.Definition, now time.Time) (generated, skipped int, err error) {
	dctx := ctx
	if p.defTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.defTimeout)
		defer cancel()
	}

	for def.DueBy(now) {
		if err := dctx.Err(); err != nil {
			// Budget exhausted: abandon for this tick, retried next one.
			return generated, skipped, fmt.Errorf("definition %d processing timed out: %w", def.ID, err)
		}

		dueAt := def.NextDueAt
		newNextDue, err := recurring.NextOccurrence(dueAt, def.Interval, def.StartDate.Day())
		if err != nil {
			return generated, skipped, fmt.Errorf("advancing definition %d: %w", def.ID, err)
		}

		claim := recurring.Claim{
			LastGeneratedAt: dueAt,
			NextDueAt:       newNextDue,
			IsActive:        true,
		}
		if def.EndDate.Valid && newNextDue.After(def.EndDate.Time) {
			claim.IsActive = false
		}

		claimed, err := p.definitions.TryClaim(dctx, def.ID, dueAt, claim)
		if err != nil {
			return generated, skipped, fmt.Errorf("claiming definition %d: %w", def.ID, err)
		}
		if !claimed {
			// Another worker advanced this window. Expected, not an error.
			skipped++
			return generated, skipped, nil
		}

		event := &ledger.Event{
			OwnerID:            def.OwnerID,
			Amount:             def.Amount,
			Kind:               def.Kind,
			Category:           def.Category,
			Description:        def.Description,
			OccurredAt:         dueAt,
			SourceDefinitionID: sql.NullInt64{Int64: def.ID, Valid: true},
		}
		if err := p.events.Create(dctx, event); err != nil {
			// The claim already advanced the schedule; the lost event is
			// reported rather than retried to keep generation at-most-once.
			return generated, skipped, fmt.Errorf("recording event for definition %d: %w", def.ID, err)
		}
		generated++

		go p.announceEvent(def, event)

		def.LastGeneratedAt = recurring.NullTime(dueAt)
		def.NextDueAt = newNextDue
		def.IsActive = claim.IsActive
	}
	return generated, skipped, nil
}

// announceEvent runs detached from the claim: notification problems
// are the dispatcher's to log and must never roll back generation.
func (p *ScheduleProcessor) announceEvent(def *recurring.Definition, event *ledger.Event) {
	title := "Recurring expense posted"
	if def.Kind == recurring.FlowIncome {
		title = "Recurring income posted"
	}

	_, err := p.announcer.Announce(context.Background(), Announcement{
		OwnerID:  def.OwnerID,
		Type:     notification.TypeRecurringTransaction,
		Priority: notification.PriorityMedium,
		Title:    title,
		Message:  fmt.Sprintf("A recurring %s of %s (%s) was added to your ledger.", def.Kind, def.Amount.StringFixed(2), def.Category),
		Payload: map[string]any{
			"event_id":      event.ID,
			"definition_id": def.ID,
			"amount":        def.Amount.String(),
			"kind":          string(def.Kind),
			"category":      def.Category,
			"occurred_at":   event.OccurredAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"definition_id": def.ID,
			"owner_id":      def.OwnerID,
		}).Error("failed to announce generated event")
	}
}
