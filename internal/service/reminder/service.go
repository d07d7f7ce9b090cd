// Package reminder implements the hourly reminder sweep: it evaluates each
// open task's configured reminder intervals against the current time window
// and delivers at most one reminder per (task, interval) per clock hour.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// Window is how long a computed send moment stays eligible. A reminder for
// interval I fires when now falls in [dueTime-I, dueTime-I+Window).
const Window = time.Hour

// DefaultIntervals applies to tasks with no custom reminders in groups with
// no configured defaults.
var DefaultIntervals = []time.Duration{24 * time.Hour, 3 * time.Hour}

// IntervalLabel renders a reminder interval as a compact ISO-8601 duration
// label, e.g. P1D for one day or PT3H for three hours. The label doubles as
// the reminder type in the task's durable remindersSent history and in the
// dedup key.
func IntervalLabel(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("P%dD", int(d/(24*time.Hour)))
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("PT%dH", int(d/time.Hour))
	}
	return fmt.Sprintf("PT%dM", int(d/time.Minute))
}

// Service runs the reminder sweep.
type Service struct {
	tasks   store.TaskStore
	groups  store.GroupStore
	db      *sql.DB
	deduper *notify.Deduper
	clock   clock.Clock
	logger  *slog.Logger
}

// NewService creates a reminder Service. db may be nil in tests.
func NewService(
	tasks store.TaskStore,
	groups store.GroupStore,
	db *sql.DB,
	deduper *notify.Deduper,
	clk clock.Clock,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		tasks:   tasks,
		groups:  groups,
		db:      db,
		deduper: deduper,
		clock:   clk,
		logger:  log.With(slog.String("component", "reminder_service")),
	}
}

// Sweep evaluates every task due within the reminder horizon and sends the
// reminders whose windows are open. It returns the number of reminders
// delivered. Per-task failures are logged and do not abort the sweep.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	groupList, err := s.groups.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list groups: %w", err)
	}

	defaults := make(map[uuid.UUID][]time.Duration, len(groupList))
	horizon := maxInterval(DefaultIntervals)
	for _, g := range groupList {
		if len(g.DefaultReminders) > 0 {
			defaults[g.ID] = g.DefaultReminders
			if m := maxInterval(g.DefaultReminders); m > horizon {
				horizon = m
			}
		}
	}

	// Task-specific overrides can reach further out than any group default.
	candidates, err := s.tasks.GetDueForReminder(ctx, now, now.Add(horizonWithOverrides(horizon)))
	if err != nil {
		return 0, fmt.Errorf("failed to query reminder candidates: %w", err)
	}

	delivered := 0
	for _, task := range candidates {
		n, err := s.sweepTask(ctx, task, defaults[task.GroupID], now)
		if err != nil {
			log.Error("reminder evaluation failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		delivered += n
	}

	return delivered, nil
}

// sweepTask evaluates one task's intervals and delivers the open ones.
func (s *Service) sweepTask(
	ctx context.Context,
	task *domain.Task,
	groupDefaults []time.Duration,
	now time.Time,
) (int, error) {
	intervals := task.CustomReminders
	if len(intervals) == 0 {
		intervals = groupDefaults
	}
	if len(intervals) == 0 {
		intervals = DefaultIntervals
	}

	var sent []string
	for _, interval := range intervals {
		shouldSendAt := task.DueTime.Add(-interval)
		if now.Before(shouldSendAt) || !now.Before(shouldSendAt.Add(Window)) {
			continue
		}

		label := IntervalLabel(interval)
		// Durable check: one reminder of a given type per clock hour.
		if task.ReminderSentWithinHour(label, now) {
			continue
		}

		// The in-memory guard catches near-simultaneous sweeps before the
		// durable history is written.
		ok := s.deduper.SendToGroupOnce(ctx,
			notify.ReminderKey(task.ID, label), notify.TTLTaskReminder, task.GroupID,
			fmt.Sprintf("Reminder: %q is due %s.", task.Title, task.DueTime.Format("2006-01-02 15:04")))
		if ok {
			sent = append(sent, label)
		}
	}

	if len(sent) == 0 {
		return 0, nil
	}

	// Record delivery in the task's durable history.
	err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		fresh, err := tasks.GetByID(ctx, task.ID)
		if err != nil {
			return err
		}
		for _, label := range sent {
			if !fresh.ReminderSentWithinHour(label, now) {
				fresh.RecordReminderSent(label, now)
			}
		}
		fresh.UpdatedAt = now
		return tasks.Update(ctx, fresh)
	})
	if err != nil {
		return len(sent), err
	}

	return len(sent), nil
}

func (s *Service) runInTaskTx(ctx context.Context, fn func(ctx context.Context, tasks store.TaskStore) error) error {
	if s.db == nil {
		return fn(ctx, s.tasks)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.tasks.WithTx(tx))
	})
}

func maxInterval(intervals []time.Duration) time.Duration {
	var max time.Duration
	for _, d := range intervals {
		if d > max {
			max = d
		}
	}
	return max
}

// horizonWithOverrides pads the query horizon so tasks whose own reminder
// intervals exceed every group default are still fetched. Thirty-one days
// covers a "one month before" override.
func horizonWithOverrides(base time.Duration) time.Duration {
	const floor = 31 * 24 * time.Hour
	if base > floor {
		return base + Window
	}
	return floor
}
