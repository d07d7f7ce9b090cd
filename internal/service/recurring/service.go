// Package recurring materializes tasks from recurring templates. The sweep
// finds active templates whose next run time has arrived, creates one task
// per template, and advances the template's schedule in the same unit of
// work so a crash between the two cannot double-create.
package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTaskDuration is how long a materialized task gets to complete when
// neither the template nor the group configures a duration.
const DefaultTaskDuration = 24 * time.Hour

// Service materializes due recurring templates into tasks.
type Service interface {
	// Materialize creates a task for every active template whose NextRunAt
	// is at or before the current time, then advances each template's
	// schedule. A template whose next instance already exists is skipped,
	// making the sweep safe to rerun after a crash. Per-template failures
	// are logged and do not abort the sweep. Returns the number of tasks
	// created.
	Materialize(ctx context.Context) (int, error)

	// MaterializeOne runs the materialize-and-advance step for a single
	// template, regardless of its NextRunAt. Used by interactive "run now"
	// requests.
	MaterializeOne(ctx context.Context, templateID uuid.UUID) error
}

// ServiceError wraps errors from the recurring service with additional
// context so consumers can differentiate failures with errors.As instead of
// string matching.
type ServiceError struct {
	// Operation is the step that failed (e.g., "materialize")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// newServiceError creates a ServiceError for the given step.
func newServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
