// Package janitor runs periodic cleanup work on a fixed interval.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of cleanup work. It reports how many records it removed.
type Task func(ctx context.Context) (int, error)

// Runner invokes a named task on a fixed interval until its context is
// canceled. Tasks run outside any request path and must take no locks shared
// with request handling.
type Runner struct {
	name     string
	interval time.Duration
	task     Task
	logger   zerolog.Logger
}

func New(name string, interval time.Duration, task Task, logger zerolog.Logger) *Runner {
	return &Runner{name: name, interval: interval, task: task, logger: logger}
}

// Run blocks until ctx is canceled. The first sweep happens one interval
// after start, not immediately.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Str("task", r.name).Msg("janitor stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	removed, err := r.task(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("task", r.name).Msg("cleanup sweep failed")
		return
	}
	if removed > 0 {
		r.logger.Info().Str("task", r.name).Int("removed", removed).Msg("cleanup sweep")
	}
}
