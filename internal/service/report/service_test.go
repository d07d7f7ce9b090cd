package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/mocks"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
)

type testEnv struct {
	svc       Service
	tasks     *mocks.MemoryTaskStore
	groups    *mocks.MemoryGroupStore
	directory *mocks.StaticDirectory
	notifier  *mocks.RecordingNotifier
	clock     *clock.Fake
	groupID   uuid.UUID
	admin     uuid.UUID
	alice     uuid.UUID
	bob       uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 13, 13, 0, 0, 0, time.UTC))
	tasks := mocks.NewMemoryTaskStore()
	groups := mocks.NewMemoryGroupStore()
	directory := mocks.NewStaticDirectory()
	notifier := mocks.NewRecordingNotifier()
	deduper := notify.NewDeduper(notifier, notify.NewMemoryGuard(clk), nil)

	env := &testEnv{
		svc:       nil,
		tasks:     tasks,
		groups:    groups,
		directory: directory,
		notifier:  notifier,
		clock:     clk,
		groupID:   uuid.New(),
		admin:     uuid.New(),
		alice:     uuid.New(),
		bob:       uuid.New(),
	}
	env.svc = NewService(tasks, groups, directory, deduper, clk, nil)

	groups.Add(&domain.Group{ID: env.groupID, Name: "ops", Timezone: "UTC"})
	directory.AddMember(env.groupID, env.admin, "carol", domain.RoleAdmin)
	directory.AddMember(env.groupID, env.alice, "alice", domain.RoleMember)
	directory.AddMember(env.groupID, env.bob, "bob", domain.RoleMember)
	return env
}

// addTask seeds a task in the given status assigned to one user.
func (e *testEnv) addTask(t *testing.T, groupID uuid.UUID, assignee uuid.UUID, status domain.TaskStatus, mutate func(*domain.Task)) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(
		groupID, "Inventory check", e.admin,
		[]uuid.UUID{assignee}, e.clock.Now().Add(time.Hour), domain.TaskPriorityMedium,
	)
	require.NoError(t, err)
	task.Status = status
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, e.tasks.Create(context.Background(), task))
	return task
}

func TestDailyOverdueSummary(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addTask(t, env.groupID, env.alice, domain.TaskStatusOverdue, func(task *domain.Task) {
		task.Title = "Send invoices"
		task.DueTime = env.clock.Now().Add(-2 * time.Hour)
	})
	env.addTask(t, env.groupID, env.bob, domain.TaskStatusOverdue, nil)

	// A second group with nothing overdue is skipped.
	quietGroup := uuid.New()
	env.groups.Add(&domain.Group{ID: quietGroup, Name: "quiet", Timezone: "UTC"})

	notified, err := env.svc.DailyOverdueSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	messages := env.notifier.GroupMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "2 overdue task(s)")
	assert.Contains(t, messages[0], "Send invoices")

	// An immediate rerun is suppressed by the summary guard.
	notified, err = env.svc.DailyOverdueSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, notified)
	assert.Len(t, env.notifier.GroupMessages(), 1)
}

func TestDailyIncompleteSummaryBreaksDownByAssignee(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addTask(t, env.groupID, env.alice, domain.TaskStatusPending, nil)
	env.addTask(t, env.groupID, env.alice, domain.TaskStatusInProgress, nil)
	env.addTask(t, env.groupID, env.bob, domain.TaskStatusPending, nil)

	notified, err := env.svc.DailyIncompleteSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	messages := env.notifier.GroupMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "3 open task(s)")
	assert.Contains(t, messages[0], "- alice: 2 open")
	assert.Contains(t, messages[0], "- bob: 1 open")
}

func TestWeeklyReportScoresStandings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	now := env.clock.Now()

	// Alice completed on time twice: 4 points.
	for i := 0; i < 2; i++ {
		env.addTask(t, env.groupID, env.alice, domain.TaskStatusCompleted, func(task *domain.Task) {
			task.DueTime = now.Add(-time.Hour)
			done := now.Add(-2 * time.Hour)
			task.CompletedAt = &done
		})
	}
	// Bob completed late once: 1 point, and has one overdue task.
	env.addTask(t, env.groupID, env.bob, domain.TaskStatusCompleted, func(task *domain.Task) {
		task.DueTime = now.Add(-24 * time.Hour)
		done := now.Add(-time.Hour)
		task.CompletedAt = &done
	})
	env.addTask(t, env.groupID, env.bob, domain.TaskStatusOverdue, func(task *domain.Task) {
		task.DueTime = now.Add(-3 * time.Hour)
	})

	notified, err := env.svc.WeeklyReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	messages := env.notifier.GroupMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "1. alice: 4 point(s) (2 on time, 0 late, 0 overdue)")
	assert.Contains(t, messages[0], "2. bob: 1 point(s) (0 on time, 1 late, 1 overdue)")
}

func TestWeeklyReportIgnoresOldCompletions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	now := env.clock.Now()

	env.addTask(t, env.groupID, env.alice, domain.TaskStatusCompleted, func(task *domain.Task) {
		task.DueTime = now.Add(-10 * 24 * time.Hour)
		done := now.Add(-9 * 24 * time.Hour)
		task.CompletedAt = &done
	})

	notified, err := env.svc.WeeklyReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, notified)
	assert.Empty(t, env.notifier.GroupMessages())
}

func TestSupervisorWeeklySummaryRollsUpAcrossGroups(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	secondGroup := uuid.New()
	env.groups.Add(&domain.Group{ID: secondGroup, Name: "finance", Timezone: "UTC"})
	env.directory.AddMember(secondGroup, env.admin, "carol", domain.RoleAdmin)

	env.addTask(t, env.groupID, env.alice, domain.TaskStatusPending, nil)
	env.addTask(t, env.groupID, env.bob, domain.TaskStatusOverdue, nil)
	env.addTask(t, secondGroup, env.bob, domain.TaskStatusPending, nil)

	notified, err := env.svc.SupervisorWeeklySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	messages := env.notifier.UserMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "- ops: 1 open, 1 overdue, 0 completed this week")
	assert.Contains(t, messages[0], "- finance: 1 open, 0 overdue, 0 completed this week")

	// Plain members receive nothing.
	assert.Empty(t, env.notifier.GroupMessages())
}

func TestRecomputeKPICachesStandings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	now := env.clock.Now()

	env.addTask(t, env.groupID, env.alice, domain.TaskStatusCompleted, func(task *domain.Task) {
		task.DueTime = now.Add(-time.Hour)
		done := now.Add(-2 * time.Hour)
		task.CompletedAt = &done
	})

	recomputed, err := env.svc.RecomputeKPI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recomputed)

	board, ok := env.svc.Standings(env.groupID)
	require.True(t, ok)
	require.Len(t, board.Scores, 1)
	assert.Equal(t, env.alice, board.Scores[0].UserID)
	assert.Equal(t, 2, board.Scores[0].Points)

	_, ok = env.svc.Standings(uuid.New())
	assert.False(t, ok)
}
