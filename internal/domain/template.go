package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Template-specific validation errors
var (
	// ErrTemplateIDEmpty is returned when a template ID is empty or nil.
	ErrTemplateIDEmpty = errors.New("template ID cannot be empty")

	// ErrTemplateGroupIDEmpty is returned when a template's group ID is empty or nil.
	ErrTemplateGroupIDEmpty = errors.New("template group ID cannot be empty")

	// ErrTemplateTitleEmpty is returned when a template's title is empty.
	ErrTemplateTitleEmpty = errors.New("template title cannot be empty")

	// ErrInvalidRecurrence is returned when a recurrence kind is not one of
	// weekly, monthly, or quarterly.
	ErrInvalidRecurrence = errors.New("invalid recurrence kind")

	// ErrInvalidWeekDay is returned when a weekly template's week day is
	// outside 0-6.
	ErrInvalidWeekDay = errors.New("week day must be between 0 (Sunday) and 6 (Saturday)")

	// ErrInvalidDayOfMonth is returned when a monthly or quarterly template's
	// day of month is outside 1-31.
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")

	// ErrInvalidTimeOfDay is returned when a template's time of day is not HH:mm.
	ErrInvalidTimeOfDay = errors.New("time of day must be in HH:mm format")

	// ErrInvalidTimezone is returned when a template's timezone cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// RecurrenceKind identifies how often a template materializes new tasks.
type RecurrenceKind string

// Possible recurrence kinds.
const (
	RecurrenceWeekly    RecurrenceKind = "weekly"
	RecurrenceMonthly   RecurrenceKind = "monthly"
	RecurrenceQuarterly RecurrenceKind = "quarterly"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// RecurringTaskTemplate periodically materializes new Task instances.
// NextRunAt is always strictly after the reference time used to compute it,
// and TotalInstances increments exactly once per materialized task.
type RecurringTaskTemplate struct {
	ID                uuid.UUID       `json:"id"`
	GroupID           uuid.UUID       `json:"groupId"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Assignees         []uuid.UUID     `json:"assignees"`
	CreatedBy         uuid.UUID       `json:"createdBy"`
	Recurrence        RecurrenceKind  `json:"recurrence"`
	WeekDay           *int            `json:"weekDay,omitempty"`
	DayOfMonth        *int            `json:"dayOfMonth,omitempty"`
	TimeOfDay         string          `json:"timeOfDay"`
	Timezone          string          `json:"timezone"`
	RequireAttachment bool            `json:"requireAttachment"`
	Priority          TaskPriority    `json:"priority"`
	Tags              []string        `json:"tags,omitempty"`
	TaskDuration      time.Duration   `json:"taskDuration"`
	Active            bool            `json:"active"`
	LastRunAt         *time.Time      `json:"lastRunAt,omitempty"`
	NextRunAt         time.Time       `json:"nextRunAt"`
	TotalInstances    int             `json:"totalInstances"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Validate checks if the RecurringTaskTemplate has valid data.
// Returns an error if any field fails validation.
func (r *RecurringTaskTemplate) Validate() error {
	if r.ID == uuid.Nil {
		return ErrTemplateIDEmpty
	}

	if r.GroupID == uuid.Nil {
		return ErrTemplateGroupIDEmpty
	}

	if r.Title == "" {
		return ErrTemplateTitleEmpty
	}

	switch r.Recurrence {
	case RecurrenceWeekly:
		if r.WeekDay == nil || *r.WeekDay < 0 || *r.WeekDay > 6 {
			return ErrInvalidWeekDay
		}
	case RecurrenceMonthly, RecurrenceQuarterly:
		if r.DayOfMonth == nil || *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRecurrence, r.Recurrence)
	}

	if !timeOfDayPattern.MatchString(r.TimeOfDay) {
		return ErrInvalidTimeOfDay
	}

	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, r.Timezone)
	}

	return nil
}

// Location returns the template's timezone. Validate must have passed first.
func (r *RecurringTaskTemplate) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, r.Timezone)
	}
	return loc, nil
}
