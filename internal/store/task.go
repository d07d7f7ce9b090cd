// Package store provides abstractions and implementations for data persistence.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// TaskStore defines the interface for task persistence.
//
// Scheduler sweeps and interactive transitions both go through this
// interface; implementations must apply each Update as a single
// read-modify-write so concurrent sweeps touching the same task cannot lose
// updates (the postgres implementation uses a transaction per task).
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrInvalidEntity if the task fails domain validation and
	// ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update persists the full current state of an existing task, including
	// its workflow sub-record and reminder history.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// GetDueForReminder retrieves open tasks (pending or in_progress) whose
	// due time falls in (from, until]. The reminder sweep derives the window
	// from the largest configured reminder interval.
	GetDueForReminder(ctx context.Context, from, until time.Time) ([]*domain.Task, error)

	// GetOverdueCandidates retrieves tasks in the group that are pending or
	// in_progress with a due time before the given instant. Tasks already
	// marked overdue are not candidates; the overdue transition is guarded by
	// status alone.
	GetOverdueCandidates(ctx context.Context, groupID uuid.UUID, before time.Time) ([]*domain.Task, error)

	// GetOverdue retrieves tasks in the group currently in the overdue state.
	GetOverdue(ctx context.Context, groupID uuid.UUID) ([]*domain.Task, error)

	// GetOpen retrieves the group's tasks that are not in a terminal state.
	GetOpen(ctx context.Context, groupID uuid.UUID) ([]*domain.Task, error)

	// GetLateForReview retrieves tasks whose review is still pending past its
	// review deadline. Used by the late-review and auto-approve sweeps.
	GetLateForReview(ctx context.Context, before time.Time) ([]*domain.Task, error)

	// GetCompletedSince retrieves the group's tasks completed at or after the
	// given instant. Used by report aggregation.
	GetCompletedSince(ctx context.Context, groupID uuid.UUID, since time.Time) ([]*domain.Task, error)

	// RecurringInstanceExists reports whether a task materialized from the
	// given template with the given instance number already exists. The
	// materializer checks this before creating, making the
	// materialize-and-advance step idempotent across crashes.
	RecurringInstanceExists(ctx context.Context, templateID uuid.UUID, instance int) (bool, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}

// TemplateStore defines the interface for recurring task template persistence.
type TemplateStore interface {
	// Create saves a new template to the store.
	Create(ctx context.Context, tmpl *domain.RecurringTaskTemplate) error

	// GetByID retrieves a template by its unique ID.
	// Returns ErrTemplateNotFound if the template does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RecurringTaskTemplate, error)

	// GetActiveDue retrieves active templates whose next run time is at or
	// before the given instant.
	GetActiveDue(ctx context.Context, now time.Time) ([]*domain.RecurringTaskTemplate, error)

	// Update persists the full current state of an existing template.
	// Returns ErrTemplateNotFound if the template does not exist.
	Update(ctx context.Context, tmpl *domain.RecurringTaskTemplate) error

	// WithTx returns a new TemplateStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TemplateStore
}

// GroupStore defines the interface for group configuration persistence,
// including the embedded pending deletion request.
type GroupStore interface {
	// GetByID retrieves a group by its unique ID.
	// Returns ErrGroupNotFound if the group does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error)

	// List retrieves all groups. Scheduler sweeps iterate this to process
	// each group independently.
	List(ctx context.Context) ([]*domain.Group, error)

	// Update persists the full current state of an existing group.
	// Returns ErrGroupNotFound if the group does not exist.
	Update(ctx context.Context, group *domain.Group) error

	// WithTx returns a new GroupStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) GroupStore
}
