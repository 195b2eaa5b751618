package app

import (
	"context"

	"github.com/jwalitptl/bloodbank/internal/config"
	jobs "github.com/jwalitptl/bloodbank/internal/worker"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
	"github.com/jwalitptl/bloodbank/pkg/worker"
)

// Runner is a background loop that returns when its context ends.
type Runner interface {
	Start(ctx context.Context)
}

// NewWorkers builds the outbox publisher, the availability restorer and the
// retention cleaner, each on its own interval.
func NewWorkers(cfg *config.Config, svcs *Services, infra *Infra, m *metrics.Metrics, log *logger.Logger) ([]Runner, error) {
	outbox, err := worker.NewOutboxProcessor(
		infra.Repos.Outbox,
		infra.Repos.Tx,
		infra.Broker,
		cfg.Outbox.ToWorkerConfig(),
		log,
		m,
	)
	if err != nil {
		return nil, err
	}

	cleaner := jobs.NewRetentionCleaner(infra.Repos.Audits, infra.Repos.Outbox, cfg.Audit.RetentionDays, log)

	return []Runner{
		outbox,
		worker.NewPeriodic("availability_restore", cfg.Donation.RestoreInterval, jobs.AvailabilityTask(svcs.Donations), log),
		worker.NewPeriodic("retention_cleanup", cfg.Audit.CleanupInterval, cleaner.Run, log),
	}, nil
}
