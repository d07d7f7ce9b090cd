package scheduler

import (
	"fmt"
	"time"
)

// scheduleKind selects which firing rule a Schedule uses.
type scheduleKind int

const (
	kindEvery scheduleKind = iota
	kindDaily
	kindWeekly
)

// Schedule describes when a job fires: at a fixed interval, daily at a
// wall-clock time, or weekly on a given day. Wall-clock times are evaluated
// in the runner's configured location.
type Schedule struct {
	kind    scheduleKind
	every   time.Duration
	weekDay time.Weekday
	hour    int
	minute  int
}

// Every fires at a fixed interval, starting one interval after Start.
func Every(interval time.Duration) Schedule {
	if interval <= 0 {
		panic("schedule interval must be positive")
	}
	return Schedule{kind: kindEvery, every: interval}
}

// DailyAt fires once a day at the given wall-clock time.
func DailyAt(hour, minute int) Schedule {
	mustClockTime(hour, minute)
	return Schedule{kind: kindDaily, hour: hour, minute: minute}
}

// WeeklyAt fires once a week on the given day at the given wall-clock time.
func WeeklyAt(day time.Weekday, hour, minute int) Schedule {
	mustClockTime(hour, minute)
	return Schedule{kind: kindWeekly, weekDay: day, hour: hour, minute: minute}
}

func mustClockTime(hour, minute int) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("invalid wall-clock time %02d:%02d", hour, minute))
	}
}

// Next returns the schedule's first fire time strictly after now, evaluated
// in the given location.
func (s Schedule) Next(now time.Time, loc *time.Location) time.Time {
	switch s.kind {
	case kindEvery:
		return now.Add(s.every)

	case kindDaily:
		local := now.In(loc)
		next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case kindWeekly:
		local := now.In(loc)
		dayDiff := (int(s.weekDay) - int(local.Weekday()) + 7) % 7
		next := time.Date(local.Year(), local.Month(), local.Day()+dayDiff, s.hour, s.minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		panic(fmt.Sprintf("unknown schedule kind %d", s.kind))
	}
}

// String renders the schedule for logs.
func (s Schedule) String() string {
	switch s.kind {
	case kindEvery:
		return "every " + s.every.String()
	case kindDaily:
		return fmt.Sprintf("daily %02d:%02d", s.hour, s.minute)
	case kindWeekly:
		return fmt.Sprintf("%s %02d:%02d", s.weekDay, s.hour, s.minute)
	default:
		return "unknown"
	}
}
