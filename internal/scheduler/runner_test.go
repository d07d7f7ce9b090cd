package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/platform/clock"
)

func countingJob(name string, interval time.Duration, counter *atomic.Int32) Job {
	return Job{
		Name:     name,
		Schedule: Every(interval),
		Run: func(context.Context) error {
			counter.Add(1)
			return nil
		},
	}
}

func TestRunnerFiresIntervalJobs(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	runner, err := NewRunner(
		[]Job{countingJob("tick", 10*time.Millisecond, &fired)},
		time.UTC, clock.NewSystem(time.UTC), nil,
	)
	require.NoError(t, err)

	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool { return fired.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestRunnerStopCancelsTimers(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	runner, err := NewRunner(
		[]Job{countingJob("tick", 10*time.Millisecond, &fired)},
		time.UTC, clock.NewSystem(time.UTC), nil,
	)
	require.NoError(t, err)

	runner.Start()
	require.Eventually(t, func() bool { return fired.Load() >= 1 },
		2*time.Second, 5*time.Millisecond)
	runner.Stop()

	after := fired.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fired.Load())

	// Stopping an already-stopped runner is a no-op.
	runner.Stop()
}

func TestRunnerRestartReplacesTimers(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	runner, err := NewRunner(
		[]Job{countingJob("tick", 10*time.Millisecond, &fired)},
		time.UTC, clock.NewSystem(time.UTC), nil,
	)
	require.NoError(t, err)

	// A second Start must fully replace the first set of timers, never
	// doubling the firing rate for the same job name.
	runner.Start()
	runner.Start()
	defer runner.Stop()

	start := time.Now()
	require.Eventually(t, func() bool { return fired.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)

	// With doubled timers three fires would arrive in well under two
	// intervals.
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestRunnerContainsJobErrorsAndPanics(t *testing.T) {
	t.Parallel()

	var after atomic.Int32
	runner, err := NewRunner(
		[]Job{
			{
				Name:     "failing",
				Schedule: Every(5 * time.Millisecond),
				Run:      func(context.Context) error { return errors.New("boom") },
			},
			{
				Name:     "panicking",
				Schedule: Every(5 * time.Millisecond),
				Run:      func(context.Context) error { panic("boom") },
			},
			countingJob("healthy", 10*time.Millisecond, &after),
		},
		time.UTC, clock.NewSystem(time.UTC), nil,
	)
	require.NoError(t, err)

	runner.Start()
	defer runner.Stop()

	// The healthy job keeps firing despite its neighbors failing every tick.
	require.Eventually(t, func() bool { return after.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestNewRunnerValidatesJobs(t *testing.T) {
	t.Parallel()

	clk := clock.NewSystem(time.UTC)
	noop := func(context.Context) error { return nil }

	_, err := NewRunner(nil, time.UTC, clk, nil)
	assert.Error(t, err)

	_, err = NewRunner([]Job{{Name: "", Schedule: Every(time.Hour), Run: noop}}, time.UTC, clk, nil)
	assert.Error(t, err)

	_, err = NewRunner([]Job{
		{Name: "dup", Schedule: Every(time.Hour), Run: noop},
		{Name: "dup", Schedule: Every(time.Hour), Run: noop},
	}, time.UTC, clk, nil)
	assert.Error(t, err)

	_, err = NewRunner([]Job{{Name: "ok", Schedule: Every(time.Hour), Run: noop}}, time.UTC, nil, nil)
	assert.Error(t, err)
}

func TestDefaultJobsTable(t *testing.T) {
	t.Parallel()

	jobs := DefaultJobs(Deps{})
	require.Len(t, jobs, 9)

	schedules := make(map[string]string, len(jobs))
	for _, job := range jobs {
		require.NotNil(t, job.Run, "job %q has no body", job.Name)
		schedules[job.Name] = job.Schedule.String()
	}

	assert.Equal(t, map[string]string{
		"reminder-sweep":            "every 1h0m0s",
		"overdue-sweep":             "daily 09:00",
		"daily-overdue-summary":     "daily 09:00",
		"weekly-report":             "Friday 13:00",
		"daily-incomplete-summary":  "daily 08:00",
		"supervisor-weekly-summary": "Monday 08:00",
		"kpi-midnight-update":       "daily 00:00",
		"recurring-materialize":     "every 5m0s",
		"auto-approve-sweep":        "every 6h0m0s",
	}, schedules)
}
