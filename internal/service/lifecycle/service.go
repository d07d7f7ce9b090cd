// Package lifecycle implements the task state machine: interactive
// submit/approve/reject/complete transitions and the scheduler-driven
// overdue, late-review, and auto-approve sweeps.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// ReviewSLA is how long a reviewer has to act on a submission before the
// review is late and eligible for auto-approval.
const ReviewSLA = 48 * time.Hour

// SubmitRequest carries one delivery of work against a task.
type SubmitRequest struct {
	TaskID         uuid.UUID `json:"taskId"`
	SubmitterID    uuid.UUID `json:"submitterId"`
	AttachmentRefs []string  `json:"attachmentRefs"`
	Comment        string    `json:"comment,omitempty"`
	Links          []string  `json:"links,omitempty"`
}

// Service drives all task status changes. No other component may write a
// task's status directly; interactive calls and scheduler sweeps both go
// through these transitions, which share the same permission predicates.
type Service interface {
	// Submit records a delivery of work by an assignee and opens the review
	// step.
	//
	// Returns:
	//   - (task, nil): the updated task with the submission appended
	//   - (nil, domain.ErrPermissionDenied): submitter is not an assignee
	//   - (nil, domain.ErrAttachmentRequired): the task requires attachments
	//     and none were provided
	//   - (nil, domain.ErrInvalidState): the task is in a terminal state
	//
	// Side effects: review-request notification to the reviewer, submission
	// notification to the group. A failed submit never partially mutates the
	// task.
	Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error)

	// Approve advances a submitted task. When the approver is the creator
	// the task closes immediately. When the approver is a delegated reviewer
	// distinct from the creator, the task moves to submitted and the creator
	// is asked to give the final approval; a second Approve call by the
	// creator then closes it.
	//
	// Returns domain.ErrPermissionDenied unless the approver is the creator
	// or the designated reviewer, and domain.ErrInvalidState when no review
	// is awaiting action.
	Approve(ctx context.Context, taskID, approverID uuid.UUID) (*domain.Task, error)

	// Reject sends a submitted task back to the assignees with a revised due
	// time. Only the creator or the designated reviewer may reject.
	Reject(ctx context.Context, taskID, reviewerID uuid.UUID, newDueTime time.Time, comment string) (*domain.Task, error)

	// Complete closes a task that needs no separate review step. Only an
	// assignee may use this path, and only while the task is pending or
	// in progress.
	Complete(ctx context.Context, taskID, closerID uuid.UUID) (*domain.Task, error)

	// MarkOverdue transitions every pending or in-progress task in the group
	// whose due time has passed into the overdue state, emitting one overdue
	// notification and one zero-point score event per task. The transition
	// itself is the idempotency guard: a task already overdue is skipped.
	// Returns the number of tasks newly marked.
	MarkOverdue(ctx context.Context, groupID uuid.UUID) (int, error)

	// MarkLateReviews flags reviews still pending past their deadline.
	// Idempotent via the lateReview flag. Returns the number flagged.
	MarkLateReviews(ctx context.Context) (int, error)

	// AutoApprove force-completes tasks whose review has been pending past
	// its deadline, bounding review latency. Returns the number completed.
	AutoApprove(ctx context.Context) (int, error)
}

// ServiceError wraps errors from the lifecycle service with additional
// context so consumers can differentiate failures with errors.As instead of
// string matching.
type ServiceError struct {
	// Operation is the transition that failed (e.g., "submit", "approve")
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

// newServiceError creates a ServiceError for the given transition.
func newServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
