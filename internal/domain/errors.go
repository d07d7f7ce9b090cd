// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied is returned when an actor lacks the required role
	// relative to a task or group. It is surfaced to the caller and never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState is returned when a transition is attempted from a task
	// status that does not allow it.
	ErrInvalidState = errors.New("invalid state for requested transition")

	// ErrAttachmentRequired is returned when a submission omits attachments on
	// a task that requires them.
	ErrAttachmentRequired = errors.New("attachment required for submission")

	// ErrAlreadyPending is returned when a group already has a pending
	// deletion request.
	ErrAlreadyPending = errors.New("a deletion request is already pending for this group")

	// ErrNoPendingRequest is returned when an approval arrives for a group
	// with no pending deletion request.
	ErrNoPendingRequest = errors.New("no pending deletion request for this group")

	// ErrNotAMember is returned when the acting user is not a current member
	// of the group.
	ErrNotAMember = errors.New("user is not a member of this group")

	// ErrInvalidSelection is returned when a bulk deletion names a task that
	// does not belong to the group.
	ErrInvalidSelection = errors.New("selection contains tasks outside this group")
)
