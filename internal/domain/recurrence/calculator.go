// Package recurrence computes the next fire time for recurring task
// templates. All functions are pure: they take an explicit reference time and
// never read the wall clock, so scheduling is deterministic under test.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskhive/taskhive/internal/domain"
)

// NextRunAt computes when the template should fire next, strictly after the
// given reference time. The result carries the template's timezone and has
// seconds and sub-seconds zeroed.
func NextRunAt(tmpl *domain.RecurringTaskTemplate, reference time.Time) (time.Time, error) {
	loc, err := tmpl.Location()
	if err != nil {
		return time.Time{}, err
	}

	hour, minute, err := parseTimeOfDay(tmpl.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	ref := reference.In(loc)

	switch tmpl.Recurrence {
	case domain.RecurrenceWeekly:
		return nextWeekly(ref, *tmpl.WeekDay, hour, minute), nil
	case domain.RecurrenceMonthly:
		return nextMonthly(ref, *tmpl.DayOfMonth, hour, minute), nil
	case domain.RecurrenceQuarterly:
		return nextQuarterly(ref, *tmpl.DayOfMonth, hour, minute), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidRecurrence, tmpl.Recurrence)
	}
}

// nextWeekly shifts the reference to the target week day within the same
// week, then advances seven days if that moment is not in the future.
func nextWeekly(ref time.Time, weekDay, hour, minute int) time.Time {
	dayDiff := weekDay - int(ref.Weekday())
	target := time.Date(ref.Year(), ref.Month(), ref.Day()+dayDiff, hour, minute, 0, 0, ref.Location())
	if !target.After(ref) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}

// nextMonthly targets the requested day clamped to the length of the current
// month. If that moment has passed it recomputes for the next month, clamping
// again (day 31 becomes Feb 28/29, Apr 30, and so on).
func nextMonthly(ref time.Time, dayOfMonth, hour, minute int) time.Time {
	target := clampedDate(ref.Year(), ref.Month(), dayOfMonth, hour, minute, ref.Location())
	if !target.After(ref) {
		target = clampedDate(ref.Year(), ref.Month()+1, dayOfMonth, hour, minute, ref.Location())
	}
	return target
}

// nextQuarterly targets the clamped day in the first month of the next
// calendar quarter (January, April, July, October). If that moment is not in
// the future it advances one more quarter.
func nextQuarterly(ref time.Time, dayOfMonth, hour, minute int) time.Time {
	month0 := int(ref.Month()) - 1
	nextQuarterStart := ((month0 / 3) + 1) * 3

	target := clampedDate(ref.Year(), time.Month(nextQuarterStart+1), dayOfMonth, hour, minute, ref.Location())
	if !target.After(ref) {
		target = clampedDate(ref.Year(), time.Month(nextQuarterStart+4), dayOfMonth, hour, minute, ref.Location())
	}
	return target
}

// clampedDate builds a date with the day clamped to the month's length.
// time.Date normalizes overflowing months into the following year, so callers
// may pass month values above December.
func clampedDate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	// Normalize the month first so the day clamp uses the right length.
	norm := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	maxDay := daysInMonth(norm.Year(), norm.Month())
	if day > maxDay {
		day = maxDay
	}
	return time.Date(norm.Year(), norm.Month(), day, hour, minute, 0, 0, loc)
}

// daysInMonth returns the number of days in the given month. Day zero of the
// following month is the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseTimeOfDay splits an HH:mm string into its components.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimeOfDay, s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimeOfDay, s)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimeOfDay, s)
	}

	return hour, minute, nil
}
