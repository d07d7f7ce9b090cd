// Package quorum coordinates bulk task deletion behind a group vote. A group
// holds at most one pending deletion request at a time; the deletion executes
// once a third of the membership (rounded up, never below one) has approved.
package quorum

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// DeletionFailure records one task that could not be deleted during
// execution. Failures are collected and reported; they never block the
// remaining deletions.
type DeletionFailure struct {
	TaskID uuid.UUID `json:"taskId"`
	Title  string    `json:"title"`
	Reason string    `json:"reason"`
}

// ApprovalResult describes the outcome of one approval vote.
type ApprovalResult struct {
	RequestID uuid.UUID `json:"requestId"`

	// AlreadyApproved is true when the voter had already approved; the vote
	// is a no-op and the counts reflect the unchanged request.
	AlreadyApproved bool `json:"alreadyApproved"`

	// Executed is true when this vote reached the threshold and the deletion
	// ran.
	Executed bool `json:"executed"`

	Approvals int `json:"approvals"`
	Required  int `json:"required"`

	// Deleted and Failed are populated only when Executed is true.
	Deleted []uuid.UUID       `json:"deleted,omitempty"`
	Failed  []DeletionFailure `json:"failed,omitempty"`
}

// Service manages the per-group deletion vote.
type Service interface {
	// Initiate opens a deletion vote over the given tasks.
	//
	// Returns:
	//   - (request, nil): the created vote with its approval threshold
	//   - (nil, domain.ErrPermissionDenied): requester is not a group admin
	//   - (nil, domain.ErrAlreadyPending): the group already has an open vote
	//   - (nil, domain.ErrInvalidSelection): a task ID does not resolve to a
	//     task in this group
	//
	// The threshold is computed from a live membership count at initiation
	// and does not change if the roster changes afterwards.
	Initiate(ctx context.Context, groupID, requesterID uuid.UUID, taskIDs []uuid.UUID) (*domain.PendingDeletionRequest, error)

	// Approve records one member's vote. A duplicate vote by the same user
	// is a no-op reported through ApprovalResult.AlreadyApproved. When the
	// vote that arrives first reaches the threshold, the referenced tasks
	// are deleted best-effort, the pending request is cleared atomically,
	// and a completion summary is sent to the group.
	//
	// Returns domain.ErrNoPendingRequest when the group has no open vote and
	// domain.ErrNotAMember when the voter does not belong to the group.
	Approve(ctx context.Context, groupID, approverID uuid.UUID) (*ApprovalResult, error)
}

// ServiceError wraps errors from the quorum service with additional context
// so consumers can differentiate failures with errors.As instead of string
// matching.
type ServiceError struct {
	// Operation is the step that failed (e.g., "initiate", "approve")
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
