// Package housekeeping runs periodic retention jobs against the outbox
// tables that back order and access events.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
)

// Job is one unit of scheduled work. Run reports how many rows it removed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type RunnerParams struct {
	Logger   *logger.Logger
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	Jobs     []Job
}

// Runner executes its jobs once per interval while holding the lock.
type Runner struct {
	logg     *logger.Logger
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
	jobs     []Job
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return &Runner{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		jobs:     jobs,
	}, nil
}

// Run performs a cycle immediately and then once per interval until ctx is
// canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.cycle(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil {
		r.logg.Error(ctx, "housekeeping cycle finished with errors", err)
	}
}

// RunOnce runs every job once if the lock can be taken. A held lock is not
// an error. Job failures do not stop later jobs; they are combined into the
// returned error. The lock is extended between jobs and the cycle stops if
// it was lost.
func (r *Runner) RunOnce(ctx context.Context) error {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire housekeeping lock: %w", err)
	}
	if !locked {
		r.logg.Info(ctx, "another housekeeper holds the lock; skipping cycle")
		return nil
	}
	defer func() {
		if err := r.lock.Release(ctx); err != nil {
			r.logg.Error(ctx, "housekeeping lock release failed", err)
		}
	}()

	var errs error
	for i, job := range r.jobs {
		if err := r.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, err)
		}
		if i == len(r.jobs)-1 {
			break
		}
		if err := r.lock.Extend(ctx); err != nil {
			// Another housekeeper may already be running; leave the rest to it.
			return multierr.Append(errs, fmt.Errorf("after job %s: %w", job.Name(), err))
		}
	}
	return errs
}

func (r *Runner) runJob(ctx context.Context, job Job) error {
	jobCtx := r.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "housekeeping.job",
	})
	start := time.Now()
	deleted, err := job.Run(jobCtx)
	elapsed := time.Since(start)
	r.metrics.Observe(job.Name(), elapsed, err)

	jobCtx = r.logg.WithFields(jobCtx, map[string]any{
		"duration_ms":  elapsed.Milliseconds(),
		"rows_deleted": deleted,
	})
	if err != nil {
		r.logg.Error(jobCtx, "housekeeping job failed", err)
		return err
	}
	r.metrics.AddDeleted(job.Name(), deleted)
	r.logg.Info(jobCtx, "housekeeping job complete")
	return nil
}
