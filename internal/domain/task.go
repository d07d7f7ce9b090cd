package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskGroupIDEmpty is returned when a task's group ID is empty or nil.
	ErrTaskGroupIDEmpty = errors.New("task group ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskNoAssignees is returned when a task has no assignees.
	ErrTaskNoAssignees = errors.New("task must have at least one assignee")

	// ErrTaskDueTimeZero is returned when a task's due time is unset.
	ErrTaskDueTimeZero = errors.New("task due time cannot be zero")
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusSubmitted  TaskStatus = "submitted"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

// Possible task priority values.
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// ReviewStatus represents the state of a task's review step.
type ReviewStatus string

// Possible review status values.
const (
	ReviewStatusNotRequested ReviewStatus = "not_requested"
	ReviewStatusPending      ReviewStatus = "pending"
	ReviewStatusApproved     ReviewStatus = "approved"
	ReviewStatusRejected     ReviewStatus = "rejected"
	ReviewStatusAutoApproved ReviewStatus = "auto_approved"
)

// allowedTransitions is the closed table of valid status transitions.
// Any transition not listed here is rejected with ErrInvalidState.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusSubmitted, TaskStatusCompleted, TaskStatusOverdue, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusSubmitted, TaskStatusCompleted, TaskStatusOverdue, TaskStatusCancelled, TaskStatusPending},
	TaskStatusSubmitted:  {TaskStatusCompleted, TaskStatusPending, TaskStatusCancelled},
	TaskStatusOverdue:    {TaskStatusInProgress, TaskStatusSubmitted, TaskStatusCompleted, TaskStatusCancelled, TaskStatusPending},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// CanTransition reports whether moving a task from one status to another is
// permitted by the lifecycle table.
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidState (wrapped with both statuses) if
// the transition is not in the lifecycle table.
func ValidateTransition(from, to TaskStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	return nil
}

// IsTerminal reports whether a status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Submission records one delivery of work against a task.
type Submission struct {
	SubmittedBy    uuid.UUID `json:"submittedBy"`
	SubmittedAt    time.Time `json:"submittedAt"`
	AttachmentRefs []string  `json:"attachmentRefs"`
	Comment        string    `json:"comment,omitempty"`
	Links          []string  `json:"links,omitempty"`
	LateSubmission bool      `json:"lateSubmission"`
}

// Review holds the review step of a task's workflow. ReviewerUserID defaults
// to the task creator and is immutable once review begins.
type Review struct {
	ReviewerUserID    uuid.UUID    `json:"reviewerUserId"`
	Status            ReviewStatus `json:"status"`
	ReviewRequestedAt *time.Time   `json:"reviewRequestedAt,omitempty"`
	ReviewDueAt       *time.Time   `json:"reviewDueAt,omitempty"`
	ReviewedAt        *time.Time   `json:"reviewedAt,omitempty"`
	ReviewerComment   string       `json:"reviewerComment,omitempty"`
	LateReview        bool         `json:"lateReview"`
}

// HistoryEntry is one append-only audit record on a task's workflow.
type HistoryEntry struct {
	Action string    `json:"action"`
	ByUser uuid.UUID `json:"byUser"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Workflow is the embedded review/submission/history sub-record of a Task.
// Its field names are part of the stored format and must not change.
type Workflow struct {
	Review      Review         `json:"review"`
	Submissions []Submission   `json:"submissions"`
	History     []HistoryEntry `json:"history"`
}

// ReminderRecord notes one reminder already delivered for a task, used to
// suppress duplicates within the same clock hour.
type ReminderRecord struct {
	Type   string    `json:"type"`
	SentAt time.Time `json:"sentAt"`
}

// Task is a shared group task moving through the lifecycle state machine.
// Status may only change through the transitions defined by the lifecycle
// service and the scheduler sweeps built on it.
type Task struct {
	ID                uuid.UUID        `json:"id"`
	GroupID           uuid.UUID        `json:"groupId"`
	Title             string           `json:"title"`
	Description       string           `json:"description,omitempty"`
	Status            TaskStatus       `json:"status"`
	Priority          TaskPriority     `json:"priority"`
	DueTime           time.Time        `json:"dueTime"`
	StartTime         *time.Time       `json:"startTime,omitempty"`
	Tags              []string         `json:"tags,omitempty"`
	Assignees         []uuid.UUID      `json:"assignees"`
	CreatedBy         uuid.UUID        `json:"createdBy"`
	RequireAttachment bool             `json:"requireAttachment"`
	CustomReminders   []time.Duration  `json:"customReminders,omitempty"`
	RemindersSent     []ReminderRecord `json:"remindersSent,omitempty"`
	Workflow          Workflow         `json:"workflow"`
	RecurringTaskID   *uuid.UUID       `json:"recurringTaskId,omitempty"`
	RecurringInstance int              `json:"recurringInstance,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
	OverdueSince      *time.Time       `json:"overdueSince,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// NewTask creates a new Task in the pending state with the given core fields.
// It generates a new UUID for the task ID and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewTask(
	groupID uuid.UUID,
	title string,
	createdBy uuid.UUID,
	assignees []uuid.UUID,
	dueTime time.Time,
	priority TaskPriority,
) (*Task, error) {
	if priority == "" {
		priority = TaskPriorityMedium
	}

	task := &Task{
		ID:        uuid.New(),
		GroupID:   groupID,
		Title:     title,
		Status:    TaskStatusPending,
		Priority:  priority,
		DueTime:   dueTime,
		Assignees: assignees,
		CreatedBy: createdBy,
		Workflow: Workflow{
			Review: Review{Status: ReviewStatusNotRequested},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.GroupID == uuid.Nil {
		return ErrTaskGroupIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	if len(t.Assignees) == 0 {
		return ErrTaskNoAssignees
	}

	if t.DueTime.IsZero() {
		return ErrTaskDueTimeZero
	}

	return nil
}

// IsAssignee reports whether the given user is an assignee of the task.
func (t *Task) IsAssignee(userID uuid.UUID) bool {
	for _, a := range t.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// Reviewer returns the user responsible for reviewing this task. Falls back
// to the creator when no dedicated reviewer has been set.
func (t *Task) Reviewer() uuid.UUID {
	if t.Workflow.Review.ReviewerUserID != uuid.Nil {
		return t.Workflow.Review.ReviewerUserID
	}
	return t.CreatedBy
}

// CanReview reports whether the given user may approve or reject this task's
// submission: the creator or the designated reviewer.
func (t *Task) CanReview(userID uuid.UUID) bool {
	return userID == t.CreatedBy || userID == t.Reviewer()
}

// AppendHistory adds an audit entry to the workflow history. History is
// append-only and never reordered.
func (t *Task) AppendHistory(action string, byUser uuid.UUID, at time.Time, note string) {
	t.Workflow.History = append(t.Workflow.History, HistoryEntry{
		Action: action,
		ByUser: byUser,
		At:     at,
		Note:   note,
	})
}

// ReminderSentWithinHour reports whether a reminder of the given type was
// already recorded within the clock hour containing at.
func (t *Task) ReminderSentWithinHour(reminderType string, at time.Time) bool {
	hourStart := at.Truncate(time.Hour)
	for _, r := range t.RemindersSent {
		if r.Type == reminderType && !r.SentAt.Before(hourStart) && r.SentAt.Before(hourStart.Add(time.Hour)) {
			return true
		}
	}
	return false
}

// RecordReminderSent appends a delivered reminder to the durable history.
func (t *Task) RecordReminderSent(reminderType string, at time.Time) {
	t.RemindersSent = append(t.RemindersSent, ReminderRecord{Type: reminderType, SentAt: at})
}
