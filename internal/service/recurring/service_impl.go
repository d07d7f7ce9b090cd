package recurring

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/domain/recurrence"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// serviceImpl implements the Service interface.
type serviceImpl struct {
	templates store.TemplateStore
	tasks     store.TaskStore
	groups    store.GroupStore
	db        *sql.DB
	deduper   *notify.Deduper
	clock     clock.Clock
	logger    *slog.Logger
}

// NewService creates a recurring Service. db may be nil in tests, in which
// case the materialize-and-advance step runs directly against the stores
// without a transaction.
func NewService(
	templates store.TemplateStore,
	tasks store.TaskStore,
	groups store.GroupStore,
	db *sql.DB,
	deduper *notify.Deduper,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	if templates == nil {
		panic("templates store cannot be nil")
	}
	if tasks == nil {
		panic("tasks store cannot be nil")
	}
	if groups == nil {
		panic("groups store cannot be nil")
	}
	if deduper == nil {
		panic("deduper cannot be nil")
	}
	if clk == nil {
		panic("clock cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &serviceImpl{
		templates: templates,
		tasks:     tasks,
		groups:    groups,
		db:        db,
		deduper:   deduper,
		clock:     clk,
		logger:    log.With(slog.String("component", "recurring_service")),
	}
}

// runInTx executes fn with the template and task stores bound to one
// transaction. Without a database handle it falls through to the bare stores.
func (s *serviceImpl) runInTx(ctx context.Context, fn func(ctx context.Context, templates store.TemplateStore, tasks store.TaskStore) error) error {
	if s.db == nil {
		return fn(ctx, s.templates, s.tasks)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.templates.WithTx(tx), s.tasks.WithTx(tx))
	})
}

// Materialize implements Service.Materialize.
func (s *serviceImpl) Materialize(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	due, err := s.templates.GetActiveDue(ctx, now)
	if err != nil {
		return 0, newServiceError("materialize", "could not list due templates", err)
	}

	created := 0
	for _, tmpl := range due {
		task, err := s.materializeTemplate(ctx, tmpl.ID, now)
		if err != nil {
			// One failing template must not abort the sweep for the rest.
			log.Error("template materialization failed",
				slog.String("template_id", tmpl.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if task == nil {
			continue
		}
		created++
		s.announce(ctx, task)
	}

	return created, nil
}

// MaterializeOne implements Service.MaterializeOne.
func (s *serviceImpl) MaterializeOne(ctx context.Context, templateID uuid.UUID) error {
	task, err := s.materializeTemplate(ctx, templateID, s.clock.Now())
	if err != nil {
		return newServiceError("materialize_one", "could not materialize template", err)
	}
	if task != nil {
		s.announce(ctx, task)
	}
	return nil
}

// materializeTemplate creates the template's next task instance and advances
// the template's schedule as one unit. It returns nil without error when the
// instance already exists, which is what makes the sweep idempotent across
// crashes and overlapping timer fires.
func (s *serviceImpl) materializeTemplate(ctx context.Context, templateID uuid.UUID, now time.Time) (*domain.Task, error) {
	var created *domain.Task
	err := s.runInTx(ctx, func(ctx context.Context, templates store.TemplateStore, tasks store.TaskStore) error {
		tmpl, err := templates.GetByID(ctx, templateID)
		if err != nil {
			return err
		}
		if !tmpl.Active {
			return nil
		}

		// The instance may already exist if a prior run created the task but
		// failed before advancing the template. In that case the task is not
		// recreated, but the schedule still advances so the template does
		// not stay due forever.
		instance := tmpl.TotalInstances + 1
		exists, err := tasks.RecurringInstanceExists(ctx, tmpl.ID, instance)
		if err != nil {
			return err
		}

		if !exists {
			task, err := domain.NewTask(
				tmpl.GroupID, tmpl.Title, tmpl.CreatedBy,
				tmpl.Assignees, now.Add(s.taskDuration(ctx, tmpl)), tmpl.Priority,
			)
			if err != nil {
				return err
			}
			task.Description = tmpl.Description
			task.Tags = tmpl.Tags
			task.RequireAttachment = tmpl.RequireAttachment
			ref := tmpl.ID
			task.RecurringTaskID = &ref
			task.RecurringInstance = instance

			if err := tasks.Create(ctx, task); err != nil {
				return err
			}
			created = task
		}

		next, err := recurrence.NextRunAt(tmpl, now)
		if err != nil {
			return err
		}
		tmpl.LastRunAt = &now
		tmpl.NextRunAt = next
		tmpl.TotalInstances = instance
		tmpl.UpdatedAt = now
		return templates.Update(ctx, tmpl)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// taskDuration picks the materialized task's completion window: template
// override first, then the group default, then the built-in fallback.
func (s *serviceImpl) taskDuration(ctx context.Context, tmpl *domain.RecurringTaskTemplate) time.Duration {
	if tmpl.TaskDuration > 0 {
		return tmpl.TaskDuration
	}
	group, err := s.groups.GetByID(ctx, tmpl.GroupID)
	if err == nil && group.DefaultTaskDuration > 0 {
		return group.DefaultTaskDuration
	}
	return DefaultTaskDuration
}

// announce sends the created-task notification, keyed so a sweep retry that
// recreated nothing cannot reannounce.
func (s *serviceImpl) announce(ctx context.Context, task *domain.Task) {
	s.deduper.SendToGroupOnce(ctx, notify.CreatedKey(task.ID), notify.TTLTaskCreated, task.GroupID,
		taskCreatedMessage(task))
}

func taskCreatedMessage(task *domain.Task) string {
	return "New recurring task: \"" + task.Title + "\" (due " + task.DueTime.Format("2006-01-02 15:04") + ")."
}
