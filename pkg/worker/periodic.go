package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/bloodbank/pkg/logger"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Periodic runs a task on a fixed interval until its context ends.
type Periodic struct {
	name     string
	interval time.Duration
	task     Task
	logger   *logger.Logger
}

func NewPeriodic(name string, interval time.Duration, task Task, log *logger.Logger) *Periodic {
	return &Periodic{name: name, interval: interval, task: task, logger: log}
}

// Start runs the task once immediately and then on every tick. Failures are
// logged and do not stop the loop.
func (p *Periodic) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting worker", "worker", p.name, "interval", p.interval.String())
	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down worker", "worker", p.name)
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(ctx context.Context) {
	if err := p.task(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error(err, "Worker run failed", "worker", p.name)
	}
}
