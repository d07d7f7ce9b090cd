package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/service/lifecycle"
	"github.com/taskhive/taskhive/internal/service/recurring"
	"github.com/taskhive/taskhive/internal/service/reminder"
	"github.com/taskhive/taskhive/internal/service/report"
	"github.com/taskhive/taskhive/internal/store"
)

// Deps are the services the standard job table drives.
type Deps struct {
	Lifecycle lifecycle.Service
	Reminder  *reminder.Service
	Report    report.Service
	Recurring recurring.Service
	Groups    store.GroupStore
}

// DefaultJobs returns the standard job table. Wall-clock times are local to
// the runner's configured location.
func DefaultJobs(deps Deps) []Job {
	return []Job{
		{
			Name:     "reminder-sweep",
			Schedule: Every(time.Hour),
			Run: func(ctx context.Context) error {
				_, err := deps.Reminder.Sweep(ctx)
				return err
			},
		},
		{
			Name:     "overdue-sweep",
			Schedule: DailyAt(9, 0),
			Run: func(ctx context.Context) error {
				return forEachGroup(ctx, deps.Groups, func(ctx context.Context, groupID uuid.UUID) error {
					_, err := deps.Lifecycle.MarkOverdue(ctx, groupID)
					return err
				})
			},
		},
		{
			Name:     "daily-overdue-summary",
			Schedule: DailyAt(9, 0),
			Run: func(ctx context.Context) error {
				_, err := deps.Report.DailyOverdueSummary(ctx)
				return err
			},
		},
		{
			Name:     "weekly-report",
			Schedule: WeeklyAt(time.Friday, 13, 0),
			Run: func(ctx context.Context) error {
				_, err := deps.Report.WeeklyReport(ctx)
				return err
			},
		},
		{
			Name:     "daily-incomplete-summary",
			Schedule: DailyAt(8, 0),
			Run: func(ctx context.Context) error {
				_, err := deps.Report.DailyIncompleteSummary(ctx)
				return err
			},
		},
		{
			Name:     "supervisor-weekly-summary",
			Schedule: WeeklyAt(time.Monday, 8, 0),
			Run: func(ctx context.Context) error {
				_, err := deps.Report.SupervisorWeeklySummary(ctx)
				return err
			},
		},
		{
			Name:     "kpi-midnight-update",
			Schedule: DailyAt(0, 0),
			Run: func(ctx context.Context) error {
				_, err := deps.Report.RecomputeKPI(ctx)
				return err
			},
		},
		{
			Name:     "recurring-materialize",
			Schedule: Every(5 * time.Minute),
			Run: func(ctx context.Context) error {
				_, err := deps.Recurring.Materialize(ctx)
				return err
			},
		},
		{
			Name:     "auto-approve-sweep",
			Schedule: Every(6 * time.Hour),
			Run: func(ctx context.Context) error {
				if _, err := deps.Lifecycle.MarkLateReviews(ctx); err != nil {
					return err
				}
				_, err := deps.Lifecycle.AutoApprove(ctx)
				return err
			},
		},
	}
}

// forEachGroup applies fn to every group. A failing group does not block the
// rest; the collected errors surface as one job error for logging.
func forEachGroup(ctx context.Context, groups store.GroupStore, fn func(ctx context.Context, groupID uuid.UUID) error) error {
	list, err := groups.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, group := range list {
		if err := fn(ctx, group.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
