package scheduler

import (
	"context"
	"time"

	"finance_notification_service/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TickRunner is the slice of the schedule processor the driver needs.
type TickRunner interface {
	Tick(ctx context.Context, now time.Time) (app.TickReport, error)
}

// TickScheduler fires the due-definition scan on a fixed cron cadence.
// Each tick runs under its own timeout and its own error handling, so
// one failed tick never stops the next from firing.
type TickScheduler struct {
	cronEngine *cron.Cron
	processor  TickRunner
	logger     *logrus.Logger
	cronSpec   string
	timeout    time.Duration
}

func NewTickScheduler(processor TickRunner, logger *logrus.Logger, cronSpec string, timeout time.Duration) *TickScheduler {
	return &TickScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		processor:  processor,
		logger:     logger,
		cronSpec:   cronSpec,
		timeout:    timeout,
	}
}

func (s *TickScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.cronSpec, s.runTick); err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("tick scheduler started")
	return nil
}

func (s *TickScheduler) runTick() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := time.Now().UTC()
	report, err := s.processor.Tick(ctx, now)
	if err != nil {
		// Operator-visible: the scan itself could not run. The next
		// scheduled tick fires regardless.
		s.logger.WithError(err).Error("tick failed")
		return
	}

	entry := s.logger.WithFields(logrus.Fields{
		"generated": report.Generated,
		"skipped":   report.Skipped,
		"failed":    len(report.Failed),
	})
	if len(report.Failed) > 0 {
		entry.WithField("failed_ids", report.Failed).Warn("tick completed with failures")
	} else if report.Generated > 0 || report.Skipped > 0 {
		entry.Info("tick completed")
	} else {
		entry.Debug("tick completed; nothing due")
	}
}

// Stop halts the cron engine and waits for a running tick to finish.
func (s *TickScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("tick scheduler stopped")
}
