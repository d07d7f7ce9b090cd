// Package report aggregates task state into group digests, the weekly
// leaderboard report, the cross-group supervisor roll-up, and the midnight
// KPI recompute.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregation windows.
const (
	// WeeklyWindow is the lookback for the Friday report.
	WeeklyWindow = 7 * 24 * time.Hour

	// KPIWindow is the lookback for leaderboard scoring.
	KPIWindow = 30 * 24 * time.Hour
)

// Score is one assignee's standing on a group leaderboard. Completing a task
// on time earns two points, completing late earns one, and a task that went
// overdue earns nothing.
type Score struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	OnTime      int       `json:"onTime"`
	Late        int       `json:"late"`
	Overdue     int       `json:"overdue"`
	Points      int       `json:"points"`
}

// Leaderboard is the scored standings of one group over a window.
type Leaderboard struct {
	GroupID     uuid.UUID `json:"groupId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Scores      []Score   `json:"scores"`
}

// Service produces the scheduled digests and reports. Each method is one
// scheduler job body; per-group failures are logged and skipped so one group
// cannot starve the rest.
type Service interface {
	// DailyOverdueSummary sends each group a count of its overdue tasks.
	// Groups with nothing overdue are skipped. Returns the number of groups
	// notified.
	DailyOverdueSummary(ctx context.Context) (int, error)

	// DailyIncompleteSummary sends each group a digest of its open tasks
	// broken down by assignee. Returns the number of groups notified.
	DailyIncompleteSummary(ctx context.Context) (int, error)

	// WeeklyReport sends each group its leaderboard standings over the past
	// week. Returns the number of groups notified.
	WeeklyReport(ctx context.Context) (int, error)

	// SupervisorWeeklySummary sends each admin one roll-up covering every
	// group they administer. Returns the number of admins notified.
	SupervisorWeeklySummary(ctx context.Context) (int, error)

	// RecomputeKPI rebuilds each group's leaderboard over the KPI window and
	// caches it for Standings. Returns the number of groups recomputed.
	RecomputeKPI(ctx context.Context) (int, error)

	// Standings returns the most recently recomputed leaderboard for the
	// group, if any.
	Standings(groupID uuid.UUID) (*Leaderboard, bool)
}

// ServiceError wraps errors from the report service with additional context
// so consumers can differentiate failures with errors.As instead of string
// matching.
type ServiceError struct {
	// Operation is the aggregation that failed (e.g., "weekly_report")
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

// newServiceError creates a ServiceError for the given aggregation.
func newServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
