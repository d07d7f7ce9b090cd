package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func intPtr(v int) *int { return &v }

func validWeeklyTemplate() *RecurringTaskTemplate {
	return &RecurringTaskTemplate{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		Title:      "Weekly standup notes",
		Assignees:  []uuid.UUID{uuid.New()},
		CreatedBy:  uuid.New(),
		Recurrence: RecurrenceWeekly,
		WeekDay:    intPtr(1),
		TimeOfDay:  "09:30",
		Timezone:   "Asia/Shanghai",
		Priority:   TaskPriorityMedium,
		Active:     true,
		NextRunAt:  time.Now().UTC().Add(time.Hour),
	}
}

func TestTemplateValidate(t *testing.T) {
	t.Parallel() // Enable parallel execution

	testCases := []struct {
		name     string
		mutate   func(*RecurringTaskTemplate)
		expected error
	}{
		{"valid weekly", func(r *RecurringTaskTemplate) {}, nil},
		{
			"valid monthly",
			func(r *RecurringTaskTemplate) {
				r.Recurrence = RecurrenceMonthly
				r.WeekDay = nil
				r.DayOfMonth = intPtr(31)
			},
			nil,
		},
		{
			"valid quarterly",
			func(r *RecurringTaskTemplate) {
				r.Recurrence = RecurrenceQuarterly
				r.WeekDay = nil
				r.DayOfMonth = intPtr(1)
			},
			nil,
		},
		{"nil ID", func(r *RecurringTaskTemplate) { r.ID = uuid.Nil }, ErrTemplateIDEmpty},
		{"nil group", func(r *RecurringTaskTemplate) { r.GroupID = uuid.Nil }, ErrTemplateGroupIDEmpty},
		{"empty title", func(r *RecurringTaskTemplate) { r.Title = "" }, ErrTemplateTitleEmpty},
		{
			"unknown recurrence",
			func(r *RecurringTaskTemplate) { r.Recurrence = "daily" },
			ErrInvalidRecurrence,
		},
		{
			"weekly without week day",
			func(r *RecurringTaskTemplate) { r.WeekDay = nil },
			ErrInvalidWeekDay,
		},
		{
			"weekly with out-of-range week day",
			func(r *RecurringTaskTemplate) { r.WeekDay = intPtr(7) },
			ErrInvalidWeekDay,
		},
		{
			"monthly without day of month",
			func(r *RecurringTaskTemplate) {
				r.Recurrence = RecurrenceMonthly
				r.DayOfMonth = nil
			},
			ErrInvalidDayOfMonth,
		},
		{
			"monthly with day 32",
			func(r *RecurringTaskTemplate) {
				r.Recurrence = RecurrenceMonthly
				r.DayOfMonth = intPtr(32)
			},
			ErrInvalidDayOfMonth,
		},
		{
			"bad time of day",
			func(r *RecurringTaskTemplate) { r.TimeOfDay = "25:99" },
			ErrInvalidTimeOfDay,
		},
		{
			"bad timezone",
			func(r *RecurringTaskTemplate) { r.Timezone = "Mars/Olympus" },
			ErrInvalidTimezone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tmpl := validWeeklyTemplate()
			tc.mutate(tmpl)
			err := tmpl.Validate()
			if tc.expected == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.expected) {
				t.Errorf("Expected error %v, got %v", tc.expected, err)
			}
		})
	}
}
