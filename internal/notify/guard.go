package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Guard is a time-indexed idempotency cache. Inserting a key suppresses all
// further attempts under that key until the key expires; expiry re-enables
// future sends. The guard is monotonic within a key's lifetime.
//
// The in-memory implementation covers a single-instance deployment; the
// redis implementation serves the same interface when multiple instances
// share the duty.
type Guard interface {
	// TrySet atomically inserts the key with the given TTL. It returns true
	// if the key was newly inserted (the caller may proceed) and false if the
	// key was already present (the caller must suppress the send).
	TrySet(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notification class TTLs. Short-lived classes only need to cover
// near-simultaneous triggers; the reminder class covers a full sweep period
// so overlapping hourly sweeps cannot double-send before the durable
// remindersSent history catches up.
const (
	TTLTaskCreated  = 5 * time.Minute
	TTLTaskReminder = 55 * time.Minute
	TTLTaskOverdue  = 60 * time.Minute
	TTLGroupSummary = 30 * time.Minute
)

// ReminderKey identifies one reminder delivery for a task, e.g.
// "task_reminder_<id>_P1D".
func ReminderKey(taskID uuid.UUID, intervalLabel string) string {
	return fmt.Sprintf("task_reminder_%s_%s", taskID, intervalLabel)
}

// OverdueKey identifies the overdue notification for a task.
func OverdueKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task_overdue_%s", taskID)
}

// CreatedKey identifies the creation notification for a task.
func CreatedKey(taskID uuid.UUID) string {
	return fmt.Sprintf("task_created_%s", taskID)
}

// SummaryKey identifies one periodic summary delivery for a group, e.g.
// "group_summary_<id>_daily_overdue".
func SummaryKey(groupID uuid.UUID, variant string) string {
	return fmt.Sprintf("group_summary_%s_%s", groupID, variant)
}
