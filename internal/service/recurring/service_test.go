package recurring

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
	templates *mocks.MemoryTemplateStore
	tasks     *mocks.MemoryTaskStore
	groups    *mocks.MemoryGroupStore
	notifier  *mocks.RecordingNotifier
	clock     *clock.Fake
	groupID   uuid.UUID
	creator   uuid.UUID
	assignee  uuid.UUID
}

// 2026-03-10 is a Tuesday.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	templates := mocks.NewMemoryTemplateStore()
	tasks := mocks.NewMemoryTaskStore()
	groups := mocks.NewMemoryGroupStore()
	notifier := mocks.NewRecordingNotifier()
	deduper := notify.NewDeduper(notifier, notify.NewMemoryGuard(clk), nil)

	groupID := uuid.New()
	groups.Add(&domain.Group{ID: groupID, Name: "ops", Timezone: "UTC"})

	return &testEnv{
		svc:       NewService(templates, tasks, groups, nil, deduper, clk, nil),
		templates: templates,
		tasks:     tasks,
		groups:    groups,
		notifier:  notifier,
		clock:     clk,
		groupID:   groupID,
		creator:   uuid.New(),
		assignee:  uuid.New(),
	}
}

// addTemplate seeds an active weekly template (Mondays 10:00 UTC) that is
// due at the fake clock's current time.
func (e *testEnv) addTemplate(t *testing.T, mutate func(*domain.RecurringTaskTemplate)) *domain.RecurringTaskTemplate {
	t.Helper()
	monday := 1
	tmpl := &domain.RecurringTaskTemplate{
		ID:         uuid.New(),
		GroupID:    e.groupID,
		Title:      "Weekly standup notes",
		Assignees:  []uuid.UUID{e.assignee},
		CreatedBy:  e.creator,
		Recurrence: domain.RecurrenceWeekly,
		WeekDay:    &monday,
		TimeOfDay:  "10:00",
		Timezone:   "UTC",
		Priority:   domain.TaskPriorityMedium,
		Tags:       []string{"standup"},
		Active:     true,
		NextRunAt:  e.clock.Now(),
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}
	if mutate != nil {
		mutate(tmpl)
	}
	require.NoError(t, e.templates.Create(context.Background(), tmpl))
	return tmpl
}

func TestMaterializeCreatesTaskAndAdvancesTemplate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tmpl := env.addTemplate(t, nil)

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open, err := env.tasks.GetOpen(context.Background(), env.groupID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	task := open[0]
	assert.Equal(t, tmpl.Title, task.Title)
	assert.Equal(t, tmpl.Assignees, task.Assignees)
	assert.Equal(t, tmpl.Tags, task.Tags)
	require.NotNil(t, task.RecurringTaskID)
	assert.Equal(t, tmpl.ID, *task.RecurringTaskID)
	assert.Equal(t, 1, task.RecurringInstance)
	assert.Equal(t, env.clock.Now().Add(DefaultTaskDuration), task.DueTime)

	updated, err := env.templates.GetByID(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalInstances)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, env.clock.Now(), *updated.LastRunAt)
	// Tuesday reference rolls to the following Monday at the configured time.
	assert.Equal(t, time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC), updated.NextRunAt)

	require.Len(t, env.notifier.GroupMessages(), 1)
	assert.Contains(t, env.notifier.GroupMessages()[0], tmpl.Title)
}

func TestMaterializeSkipsTemplatesNotYetDue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addTemplate(t, func(tmpl *domain.RecurringTaskTemplate) {
		tmpl.NextRunAt = env.clock.Now().Add(time.Hour)
	})

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 0, env.tasks.Len())
}

func TestMaterializeSecondSweepCreatesNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addTemplate(t, nil)

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, created)

	// The schedule advanced past now, so an immediate rerun finds nothing.
	created, err = env.svc.Materialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, env.tasks.Len())
}

func TestMaterializeRecoversFromPartialRun(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tmpl := env.addTemplate(t, nil)

	// Simulate a prior run that created instance 1 but crashed before
	// advancing the template.
	orphan, err := domain.NewTask(
		env.groupID, tmpl.Title, env.creator,
		tmpl.Assignees, env.clock.Now().Add(DefaultTaskDuration), tmpl.Priority,
	)
	require.NoError(t, err)
	ref := tmpl.ID
	orphan.RecurringTaskID = &ref
	orphan.RecurringInstance = 1
	require.NoError(t, env.tasks.Create(context.Background(), orphan))

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, env.tasks.Len())
	assert.Empty(t, env.notifier.GroupMessages())

	// The schedule still advanced, so the template is no longer stuck due.
	updated, err := env.templates.GetByID(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalInstances)
	assert.True(t, updated.NextRunAt.After(env.clock.Now()))
}

func TestMaterializeOneSkipsInactiveTemplate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	tmpl := env.addTemplate(t, func(tmpl *domain.RecurringTaskTemplate) {
		tmpl.Active = false
	})

	require.NoError(t, env.svc.MaterializeOne(context.Background(), tmpl.ID))
	assert.Equal(t, 0, env.tasks.Len())
}

func TestMaterializeUsesGroupDefaultDuration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	group, err := env.groups.GetByID(context.Background(), env.groupID)
	require.NoError(t, err)
	group.DefaultTaskDuration = 48 * time.Hour
	require.NoError(t, env.groups.Update(context.Background(), group))

	env.addTemplate(t, nil)

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, created)

	open, err := env.tasks.GetOpen(context.Background(), env.groupID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.clock.Now().Add(48*time.Hour), open[0].DueTime)
}

func TestMaterializeHonorsTemplateDuration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addTemplate(t, func(tmpl *domain.RecurringTaskTemplate) {
		tmpl.TaskDuration = 6 * time.Hour
	})

	created, err := env.svc.Materialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, created)

	open, err := env.tasks.GetOpen(context.Background(), env.groupID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, env.clock.Now().Add(6*time.Hour), open[0].DueTime)
}

func TestMaterializeOneUnknownTemplate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.svc.MaterializeOne(context.Background(), uuid.New())
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "materialize_one", svcErr.Operation)
}
