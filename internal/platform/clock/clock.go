// Package clock abstracts wall-clock access so time-driven logic can be
// tested deterministically with a fake implementation.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time and the timezone used for group-local
// schedules. Core services take a Clock instead of calling time.Now so sweeps
// and recurrence math can be driven by a fake in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Location returns the timezone for group-local schedule arithmetic.
	Location() *time.Location
}

// systemClock is the production Clock backed by the OS clock.
type systemClock struct {
	loc *time.Location
}

// NewSystem returns a Clock backed by the OS clock, reporting times in the
// given location. A nil location defaults to UTC.
func NewSystem(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &systemClock{loc: loc}
}

func (c *systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *systemClock) Location() *time.Location {
	return c.loc
}

// Fake is a manually-advanced Clock for tests. The zero value is not usable;
// construct it with NewFake.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock frozen at the given instant.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Location()
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set moves the fake clock to the given instant.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
