// Package worker holds the engine's background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/pkg/logger"
)

// RetentionCleaner removes audit logs and processed outbox events older than
// the retention period.
type RetentionCleaner struct {
	audits        repository.AuditRepository
	outbox        repository.OutboxRepository
	retentionDays int
	logger        *logger.Logger
	now           func() time.Time
}

func NewRetentionCleaner(audits repository.AuditRepository, outbox repository.OutboxRepository, retentionDays int, log *logger.Logger) *RetentionCleaner {
	return &RetentionCleaner{
		audits:        audits,
		outbox:        outbox,
		retentionDays: retentionDays,
		logger:        log,
		now:           time.Now,
	}
}

func (w *RetentionCleaner) SetClock(now func() time.Time) {
	w.now = now
}

func (w *RetentionCleaner) Run(ctx context.Context) error {
	if w.retentionDays <= 0 {
		return nil
	}
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	audits, err := w.audits.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	events, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	if audits > 0 || events > 0 {
		w.logger.Info("Retention cleanup finished",
			"audit_logs", audits,
			"outbox_events", events,
			"cutoff", cutoff)
	}
	return nil
}
