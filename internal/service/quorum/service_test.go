package quorum

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/mocks"
	"github.com/taskhive/taskhive/internal/platform/clock"
)

type testEnv struct {
	svc       Service
	groups    *mocks.MemoryGroupStore
	tasks     *mocks.MemoryTaskStore
	directory *mocks.StaticDirectory
	notifier  *mocks.RecordingNotifier
	clock     *clock.Fake
	groupID   uuid.UUID
	admin     uuid.UUID
	members   []uuid.UUID
}

// newTestEnv seeds a group with the given member count. The first member is
// the admin; the rest are plain members.
func newTestEnv(t *testing.T, memberCount int) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	groups := mocks.NewMemoryGroupStore()
	tasks := mocks.NewMemoryTaskStore()
	directory := mocks.NewStaticDirectory()
	notifier := mocks.NewRecordingNotifier()

	groupID := uuid.New()
	groups.Add(&domain.Group{ID: groupID, Name: "ops", Timezone: "UTC"})

	members := make([]uuid.UUID, 0, memberCount)
	for i := 0; i < memberCount; i++ {
		userID := uuid.New()
		role := domain.RoleMember
		if i == 0 {
			role = domain.RoleAdmin
		}
		directory.AddMember(groupID, userID, fmt.Sprintf("member-%d", i), role)
		members = append(members, userID)
	}

	return &testEnv{
		svc:       NewService(groups, tasks, nil, directory, notifier, clk, nil),
		groups:    groups,
		tasks:     tasks,
		directory: directory,
		notifier:  notifier,
		clock:     clk,
		groupID:   groupID,
		admin:     members[0],
		members:   members,
	}
}

// addTask seeds a pending task in the group and returns its ID.
func (e *testEnv) addTask(t *testing.T) uuid.UUID {
	t.Helper()
	task, err := domain.NewTask(
		e.groupID, "Archive cleanup", e.admin,
		[]uuid.UUID{e.members[len(e.members)-1]},
		e.clock.Now().Add(24*time.Hour), domain.TaskPriorityMedium,
	)
	require.NoError(t, err)
	require.NoError(t, e.tasks.Create(context.Background(), task))
	return task.ID
}

func TestInitiateComputesThreshold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		members  int
		required int
	}{
		{members: 1, required: 1},
		{members: 2, required: 1},
		{members: 3, required: 1},
		{members: 4, required: 2},
		{members: 10, required: 4},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("%d_members", tc.members), func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, tc.members)
			taskID := env.addTask(t)

			request, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
			require.NoError(t, err)
			assert.Equal(t, tc.required, request.RequiredApprovals)
			assert.Equal(t, tc.members, request.TotalMembers)
		})
	}
}

func TestInitiateSnapshotsTasksAndNotifies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)
	taskID := env.addTask(t)

	request, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	require.Len(t, request.Tasks, 1)
	assert.Equal(t, taskID, request.Tasks[0].ID)
	assert.Equal(t, "Archive cleanup", request.Tasks[0].Title)
	assert.Equal(t, domain.TaskStatusPending, request.Tasks[0].Status)
	assert.Equal(t, []string{"member-3"}, request.Tasks[0].AssigneeNames)

	group, err := env.groups.GetByID(context.Background(), env.groupID)
	require.NoError(t, err)
	require.NotNil(t, group.PendingDeletion)
	assert.Equal(t, request.ID, group.PendingDeletion.ID)

	require.Len(t, env.notifier.GroupMessages(), 1)
	assert.Contains(t, env.notifier.GroupMessages()[0], "Archive cleanup")
}

func TestInitiateRequiresAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.members[1], []uuid.UUID{taskID})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestInitiateRejectsSecondRequest(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	_, err = env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	assert.ErrorIs(t, err, domain.ErrAlreadyPending)
}

func TestInitiateRejectsForeignTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)

	// A task in some other group is not a valid selection.
	otherGroup := uuid.New()
	foreign, err := domain.NewTask(
		otherGroup, "Elsewhere", env.admin,
		[]uuid.UUID{env.admin}, env.clock.Now().Add(time.Hour), domain.TaskPriorityLow,
	)
	require.NoError(t, err)
	require.NoError(t, env.tasks.Create(context.Background(), foreign))

	_, err = env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{foreign.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidSelection)

	_, err = env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, domain.ErrInvalidSelection)

	// A failed initiation must not leave a partial request behind.
	group, err := env.groups.GetByID(context.Background(), env.groupID)
	require.NoError(t, err)
	assert.Nil(t, group.PendingDeletion)
}

func TestApproveWithoutRequest(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)

	_, err := env.svc.Approve(context.Background(), env.groupID, env.admin)
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)
}

func TestApproveRequiresMembership(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 4)
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	_, err = env.svc.Approve(context.Background(), env.groupID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestApproveReportsProgressBelowThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 10) // required = 4
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	result, err := env.svc.Approve(context.Background(), env.groupID, env.members[1])
	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.False(t, result.AlreadyApproved)
	assert.Equal(t, 1, result.Approvals)
	assert.Equal(t, 4, result.Required)

	// The task survives while the vote is open.
	_, err = env.tasks.GetByID(context.Background(), taskID)
	assert.NoError(t, err)
}

func TestDuplicateApprovalIsNoOp(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 10)
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	first, err := env.svc.Approve(context.Background(), env.groupID, env.members[1])
	require.NoError(t, err)
	require.Equal(t, 1, first.Approvals)

	second, err := env.svc.Approve(context.Background(), env.groupID, env.members[1])
	require.NoError(t, err)
	assert.True(t, second.AlreadyApproved)
	assert.False(t, second.Executed)
	assert.Equal(t, 1, second.Approvals)
}

func TestExecutionHappensExactlyOnceAtThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 10) // required = 4
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)
	beforeMessages := len(env.notifier.GroupMessages())

	for i := 1; i <= 3; i++ {
		result, err := env.svc.Approve(context.Background(), env.groupID, env.members[i])
		require.NoError(t, err)
		assert.False(t, result.Executed)
	}

	// The fourth distinct approval crosses the threshold.
	result, err := env.svc.Approve(context.Background(), env.groupID, env.members[4])
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, []uuid.UUID{taskID}, result.Deleted)
	assert.Empty(t, result.Failed)

	_, err = env.tasks.GetByID(context.Background(), taskID)
	assert.Error(t, err)

	group, err := env.groups.GetByID(context.Background(), env.groupID)
	require.NoError(t, err)
	assert.Nil(t, group.PendingDeletion)

	// One completion summary was sent.
	assert.Len(t, env.notifier.GroupMessages(), beforeMessages+1)

	// A vote after execution finds no pending request.
	_, err = env.svc.Approve(context.Background(), env.groupID, env.members[5])
	assert.ErrorIs(t, err, domain.ErrNoPendingRequest)
}

func TestSingleMemberGroupExecutesOnFirstVote(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 1)
	taskID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{taskID})
	require.NoError(t, err)

	result, err := env.svc.Approve(context.Background(), env.groupID, env.admin)
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, 1, result.Required)

	_, err = env.tasks.GetByID(context.Background(), taskID)
	assert.Error(t, err)
}

func TestExecutionCollectsPerTaskFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 3) // required = 1
	keepID := env.addTask(t)
	goneID := env.addTask(t)

	_, err := env.svc.Initiate(context.Background(), env.groupID, env.admin, []uuid.UUID{keepID, goneID})
	require.NoError(t, err)

	// One snapshotted task disappears before the vote completes; its failure
	// must not block deleting the rest.
	require.NoError(t, env.tasks.Delete(context.Background(), goneID))

	result, err := env.svc.Approve(context.Background(), env.groupID, env.admin)
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, []uuid.UUID{keepID}, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, goneID, result.Failed[0].TaskID)

	group, err := env.groups.GetByID(context.Background(), env.groupID)
	require.NoError(t, err)
	assert.Nil(t, group.PendingDeletion)

	messages := env.notifier.GroupMessages()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[len(messages)-1], "1 failed")
}

func TestServiceErrorUnwraps(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")
	err := newServiceError("approve", "could not record approval", base)
	assert.ErrorIs(t, err, base)

	var svcErr *ServiceError
	require.ErrorAs(t, error(err), &svcErr)
	assert.Equal(t, "approve", svcErr.Operation)
}
