// Package scheduler fires named jobs on fixed schedules. Each job runs on
// its own timer goroutine; job bodies catch and log their own errors so one
// failing sweep never stops the runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhive/taskhive/internal/platform/clock"
)

// JobFunc is one job body. The context is cancelled when the runner stops;
// bodies may ignore it and finish their in-flight work, since every
// transition they apply is idempotent.
type JobFunc func(ctx context.Context) error

// Job pairs a name with its schedule and body.
type Job struct {
	Name     string
	Schedule Schedule
	Run      JobFunc
}

// Runner drives a set of named jobs. Start registers a timer per job; Stop
// cancels them. Starting an already-started runner first fully stops the
// previous timers, so no job name ever holds two live timers.
type Runner struct {
	jobs   []Job
	loc    *time.Location
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Running reports whether the runner currently holds live timers.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// NewRunner creates a Runner that evaluates wall-clock schedules in loc.
func NewRunner(jobs []Job, loc *time.Location, clk clock.Clock, log *slog.Logger) (*Runner, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("runner needs at least one job")
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job %q is missing a name or body", job.Name)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
	}
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		return nil, fmt.Errorf("runner needs a clock")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		jobs:   jobs,
		loc:    loc,
		clock:  clk,
		logger: log.With(slog.String("component", "scheduler")),
	}, nil
}

// Start registers one timer goroutine per job. A runner that is already
// started is fully stopped first.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.started = true

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}

	r.logger.Info("scheduler started", slog.Int("jobs", len(r.jobs)))
}

// Stop cancels all pending timers and waits for timer goroutines to exit.
// In-flight job bodies run to completion. Stopping a stopped runner is a
// no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Runner) stopLocked() {
	if !r.started {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
	r.started = false
	r.logger.Info("scheduler stopped")
}

// loop waits out each fire time for one job and runs its body.
func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	for {
		now := r.clock.Now()
		next := job.Schedule.Next(now, r.loc)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.runJob(ctx, job)
		}
	}
}

// runJob executes one job body, containing errors and panics.
func (r *Runner) runJob(ctx context.Context, job Job) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked",
				slog.String("job", job.Name),
				slog.Any("panic", p))
		}
	}()

	start := r.clock.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("job completed",
		slog.String("job", job.Name),
		slog.Duration("elapsed", r.clock.Now().Sub(start)))
}
