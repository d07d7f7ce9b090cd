package quorum

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/membership"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// serviceImpl implements the Service interface.
type serviceImpl struct {
	groups    store.GroupStore
	tasks     store.TaskStore
	db        *sql.DB
	directory membership.Directory
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *slog.Logger
}

// NewService creates a quorum Service. db may be nil in tests, in which case
// operations run directly against the stores without a transaction.
func NewService(
	groups store.GroupStore,
	tasks store.TaskStore,
	db *sql.DB,
	directory membership.Directory,
	notifier notify.Notifier,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	if groups == nil {
		panic("groups store cannot be nil")
	}
	if tasks == nil {
		panic("tasks store cannot be nil")
	}
	if directory == nil {
		panic("membership directory cannot be nil")
	}
	if notifier == nil {
		panic("notifier cannot be nil")
	}
	if clk == nil {
		panic("clock cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &serviceImpl{
		groups:    groups,
		tasks:     tasks,
		db:        db,
		directory: directory,
		notifier:  notifier,
		clock:     clk,
		logger:    log.With(slog.String("component", "quorum_service")),
	}
}

// runInTx executes fn with both stores bound to one transaction, so the vote
// record and the task deletions land in the same unit. Without a database
// handle it falls through to the bare stores.
func (s *serviceImpl) runInTx(ctx context.Context, fn func(ctx context.Context, groups store.GroupStore, tasks store.TaskStore) error) error {
	if s.db == nil {
		return fn(ctx, s.groups, s.tasks)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.groups.WithTx(tx), s.tasks.WithTx(tx))
	})
}

// Initiate implements Service.Initiate.
func (s *serviceImpl) Initiate(ctx context.Context, groupID, requesterID uuid.UUID, taskIDs []uuid.UUID) (*domain.PendingDeletionRequest, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	isAdmin, err := s.directory.IsAdmin(ctx, requesterID, groupID)
	if err != nil {
		return nil, newServiceError("initiate", "could not check requester role", err)
	}
	if !isAdmin {
		return nil, newServiceError("initiate", "requester lacks admin role",
			fmt.Errorf("%w: only admins may initiate bulk deletion", domain.ErrPermissionDenied))
	}

	members, err := s.directory.GetMembers(ctx, groupID)
	if err != nil {
		return nil, newServiceError("initiate", "could not read group roster", err)
	}
	names := make(map[uuid.UUID]string, len(members))
	for _, m := range members {
		names[m.UserID] = m.DisplayName
	}

	var request *domain.PendingDeletionRequest
	err = s.runInTx(ctx, func(ctx context.Context, groups store.GroupStore, tasks store.TaskStore) error {
		group, err := groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group.PendingDeletion != nil {
			return domain.ErrAlreadyPending
		}

		// Snapshot the tasks as they are now; the vote shows voters what
		// they approve even if a task changes before execution.
		snapshots := make([]domain.DeletionTaskSnapshot, 0, len(taskIDs))
		for _, taskID := range taskIDs {
			task, err := tasks.GetByID(ctx, taskID)
			if err != nil {
				if store.IsNotFoundError(err) {
					return fmt.Errorf("%w: task %s not found", domain.ErrInvalidSelection, taskID)
				}
				return err
			}
			if task.GroupID != groupID {
				return fmt.Errorf("%w: task %s belongs to another group", domain.ErrInvalidSelection, taskID)
			}
			snapshots = append(snapshots, domain.DeletionTaskSnapshot{
				ID:            task.ID,
				Title:         task.Title,
				Status:        task.Status,
				AssigneeNames: assigneeNames(task, names),
			})
		}

		request = domain.NewPendingDeletionRequest(requesterID, snapshots, len(members), s.clock.Now())
		group.PendingDeletion = request
		group.UpdatedAt = s.clock.Now()
		return groups.Update(ctx, group)
	})
	if err != nil {
		return nil, newServiceError("initiate", "could not create deletion request", err)
	}

	log.Info("deletion vote opened",
		slog.String("group_id", groupID.String()),
		slog.String("request_id", request.ID.String()),
		slog.Int("task_count", len(request.Tasks)),
		slog.Int("required_approvals", request.RequiredApprovals))

	if err := s.notifier.SendToGroup(ctx, groupID, initiationMessage(request)); err != nil {
		log.Warn("notification delivery failed", slog.String("error", err.Error()))
	}

	return request, nil
}

// Approve implements Service.Approve.
func (s *serviceImpl) Approve(ctx context.Context, groupID, approverID uuid.UUID) (*ApprovalResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	isMember, err := s.directory.IsMember(ctx, approverID, groupID)
	if err != nil {
		return nil, newServiceError("approve", "could not check voter membership", err)
	}
	if !isMember {
		return nil, newServiceError("approve", "voter is not in the group", domain.ErrNotAMember)
	}

	var result *ApprovalResult
	err = s.runInTx(ctx, func(ctx context.Context, groups store.GroupStore, tasks store.TaskStore) error {
		group, err := groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		request := group.PendingDeletion
		if request == nil {
			return domain.ErrNoPendingRequest
		}

		now := s.clock.Now()
		if !request.AddApproval(approverID, now) {
			result = &ApprovalResult{
				RequestID:       request.ID,
				AlreadyApproved: true,
				Approvals:       len(request.Approvals),
				Required:        request.RequiredApprovals,
			}
			return nil
		}

		if !request.ThresholdReached() {
			result = &ApprovalResult{
				RequestID: request.ID,
				Approvals: len(request.Approvals),
				Required:  request.RequiredApprovals,
			}
			group.UpdatedAt = now
			return groups.Update(ctx, group)
		}

		// Threshold reached: delete best-effort and clear the request in the
		// same write, so the vote can never execute twice.
		result = &ApprovalResult{
			RequestID: request.ID,
			Executed:  true,
			Approvals: len(request.Approvals),
			Required:  request.RequiredApprovals,
		}
		for _, snapshot := range request.Tasks {
			if err := tasks.Delete(ctx, snapshot.ID); err != nil {
				result.Failed = append(result.Failed, DeletionFailure{
					TaskID: snapshot.ID,
					Title:  snapshot.Title,
					Reason: err.Error(),
				})
				continue
			}
			result.Deleted = append(result.Deleted, snapshot.ID)
		}

		group.PendingDeletion = nil
		group.UpdatedAt = now
		return groups.Update(ctx, group)
	})
	if err != nil {
		return nil, newServiceError("approve", "could not record approval", err)
	}

	log.Info("deletion vote recorded",
		slog.String("group_id", groupID.String()),
		slog.String("approver_id", approverID.String()),
		slog.Int("approvals", result.Approvals),
		slog.Int("required", result.Required),
		slog.Bool("executed", result.Executed))

	if result.Executed {
		if err := s.notifier.SendToGroup(ctx, groupID, completionMessage(result)); err != nil {
			log.Warn("notification delivery failed", slog.String("error", err.Error()))
		}
	}

	return result, nil
}

// assigneeNames resolves a task's assignees against the roster, falling back
// to the raw ID for users who have since left the group.
func assigneeNames(task *domain.Task, names map[uuid.UUID]string) []string {
	resolved := make([]string, 0, len(task.Assignees))
	for _, userID := range task.Assignees {
		if name, ok := names[userID]; ok && name != "" {
			resolved = append(resolved, name)
			continue
		}
		resolved = append(resolved, userID.String())
	}
	return resolved
}

func initiationMessage(request *domain.PendingDeletionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk deletion of %d task(s) requested. %d approval(s) needed to proceed:\n",
		len(request.Tasks), request.RequiredApprovals)
	for _, snapshot := range request.Tasks {
		fmt.Fprintf(&b, "- %s (%s)\n", snapshot.Title, snapshot.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func completionMessage(result *ApprovalResult) string {
	if len(result.Failed) == 0 {
		return fmt.Sprintf("Bulk deletion approved: %d task(s) deleted.", len(result.Deleted))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk deletion approved: %d task(s) deleted, %d failed:\n",
		len(result.Deleted), len(result.Failed))
	for _, failure := range result.Failed {
		fmt.Fprintf(&b, "- %s: %s\n", failure.Title, failure.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
