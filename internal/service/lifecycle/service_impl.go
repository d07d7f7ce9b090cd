package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// serviceImpl implements the Service interface.
type serviceImpl struct {
	tasks    store.TaskStore
	db       *sql.DB
	notifier notify.Notifier
	deduper  *notify.Deduper
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService creates a lifecycle Service. db may be nil in tests, in which
// case transitions run directly against the store without a transaction.
func NewService(
	tasks store.TaskStore,
	db *sql.DB,
	notifier notify.Notifier,
	deduper *notify.Deduper,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	if tasks == nil {
		panic("tasks store cannot be nil")
	}
	if notifier == nil {
		panic("notifier cannot be nil")
	}
	if deduper == nil {
		panic("deduper cannot be nil")
	}
	if clk == nil {
		panic("clock cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &serviceImpl{
		tasks:    tasks,
		db:       db,
		notifier: notifier,
		deduper:  deduper,
		clock:    clk,
		logger:   log.With(slog.String("component", "lifecycle_service")),
	}
}

// runInTaskTx executes fn with a TaskStore bound to a transaction, so the
// precondition check and the write land in the same unit and concurrent
// sweeps cannot lose updates. Without a database handle it falls through to
// the bare store.
func (s *serviceImpl) runInTaskTx(ctx context.Context, fn func(ctx context.Context, tasks store.TaskStore) error) error {
	if s.db == nil {
		return fn(ctx, s.tasks)
	}
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.tasks.WithTx(tx))
	})
}

// Submit implements Service.Submit.
func (s *serviceImpl) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		task, err := tasks.GetByID(ctx, req.TaskID)
		if err != nil {
			return err
		}

		// All checks happen before any mutation: a failed submit leaves the
		// task untouched.
		if !task.IsAssignee(req.SubmitterID) {
			return fmt.Errorf("%w: only assignees may submit", domain.ErrPermissionDenied)
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, task.Status)
		}
		if task.RequireAttachment && len(req.AttachmentRefs) == 0 {
			return domain.ErrAttachmentRequired
		}

		now := s.clock.Now()
		task.Workflow.Submissions = append(task.Workflow.Submissions, domain.Submission{
			SubmittedBy:    req.SubmitterID,
			SubmittedAt:    now,
			AttachmentRefs: req.AttachmentRefs,
			Comment:        req.Comment,
			Links:          req.Links,
			LateSubmission: now.After(task.DueTime),
		})

		review := &task.Workflow.Review
		if review.ReviewerUserID == uuid.Nil {
			review.ReviewerUserID = task.CreatedBy
		}
		review.Status = domain.ReviewStatusPending
		review.ReviewRequestedAt = &now
		reviewDue := now.Add(ReviewSLA)
		review.ReviewDueAt = &reviewDue
		review.LateReview = false

		if task.Status == domain.TaskStatusPending {
			if err := domain.ValidateTransition(task.Status, domain.TaskStatusInProgress); err != nil {
				return err
			}
			task.Status = domain.TaskStatusInProgress
		}

		task.AppendHistory("submit", req.SubmitterID, now, "")
		task.UpdatedAt = now

		if err := tasks.Update(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, newServiceError("submit", "could not record submission", err)
	}

	log.Info("task submitted",
		slog.String("task_id", updated.ID.String()),
		slog.String("submitter_id", req.SubmitterID.String()))

	s.send(ctx, func() error {
		return s.notifier.SendToUser(ctx, updated.Reviewer(),
			fmt.Sprintf("Review requested: %q was submitted and awaits your review.", updated.Title))
	})
	s.send(ctx, func() error {
		return s.notifier.SendToGroup(ctx, updated.GroupID,
			fmt.Sprintf("Task %q was submitted for review.", updated.Title))
	})

	return updated, nil
}

// Approve implements Service.Approve.
func (s *serviceImpl) Approve(ctx context.Context, taskID, approverID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	var finalClose bool
	err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}

		if !task.CanReview(approverID) {
			return fmt.Errorf("%w: only the creator or reviewer may approve", domain.ErrPermissionDenied)
		}

		now := s.clock.Now()
		review := &task.Workflow.Review

		switch {
		case review.Status == domain.ReviewStatusPending && approverID == task.CreatedBy:
			// The creator's approval closes the task directly.
			if err := s.close(task, domain.ReviewStatusApproved, approverID, now); err != nil {
				return err
			}
			finalClose = true

		case review.Status == domain.ReviewStatusPending:
			// A delegated reviewer approves first; the creator confirms.
			if err := domain.ValidateTransition(task.Status, domain.TaskStatusSubmitted); err != nil {
				return err
			}
			task.Status = domain.TaskStatusSubmitted
			review.Status = domain.ReviewStatusApproved
			review.ReviewedAt = &now
			task.AppendHistory("approve", approverID, now, "awaiting final approval")

		case review.Status == domain.ReviewStatusApproved &&
			task.Status == domain.TaskStatusSubmitted &&
			approverID == task.CreatedBy:
			// Second step of the delegated-reviewer flow.
			if err := s.close(task, domain.ReviewStatusApproved, approverID, now); err != nil {
				return err
			}
			finalClose = true

		default:
			return fmt.Errorf("%w: no review awaiting approval", domain.ErrInvalidState)
		}

		task.UpdatedAt = now
		if err := tasks.Update(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, newServiceError("approve", "could not record approval", err)
	}

	log.Info("task approval recorded",
		slog.String("task_id", updated.ID.String()),
		slog.String("approver_id", approverID.String()),
		slog.Bool("closed", finalClose))

	if finalClose {
		s.send(ctx, func() error {
			return s.notifier.SendToGroup(ctx, updated.GroupID,
				fmt.Sprintf("Task %q was approved and completed.", updated.Title))
		})
	} else {
		s.send(ctx, func() error {
			return s.notifier.SendToUser(ctx, updated.CreatedBy,
				fmt.Sprintf("Final approval needed: the reviewer approved %q.", updated.Title))
		})
	}

	return updated, nil
}

// Reject implements Service.Reject.
func (s *serviceImpl) Reject(
	ctx context.Context,
	taskID, reviewerID uuid.UUID,
	newDueTime time.Time,
	comment string,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}

		if !task.CanReview(reviewerID) {
			return fmt.Errorf("%w: only the creator or reviewer may reject", domain.ErrPermissionDenied)
		}

		review := &task.Workflow.Review
		if review.Status != domain.ReviewStatusPending && review.Status != domain.ReviewStatusApproved {
			return fmt.Errorf("%w: no review to reject", domain.ErrInvalidState)
		}

		now := s.clock.Now()
		if task.Status != domain.TaskStatusPending {
			if err := domain.ValidateTransition(task.Status, domain.TaskStatusPending); err != nil {
				return err
			}
			task.Status = domain.TaskStatusPending
		}

		task.DueTime = newDueTime
		review.Status = domain.ReviewStatusRejected
		review.ReviewerComment = comment
		review.ReviewedAt = &now

		task.AppendHistory("reject", reviewerID, now, comment)
		task.AppendHistory("revise_due", reviewerID, now, newDueTime.Format(time.RFC3339))
		task.UpdatedAt = now

		if err := tasks.Update(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, newServiceError("reject", "could not record rejection", err)
	}

	log.Info("task rejected",
		slog.String("task_id", updated.ID.String()),
		slog.String("reviewer_id", reviewerID.String()),
		slog.Time("new_due_time", newDueTime))

	s.send(ctx, func() error {
		return s.notifier.SendToGroup(ctx, updated.GroupID,
			fmt.Sprintf("Task %q was sent back for revision. New due date: %s.",
				updated.Title, newDueTime.Format("2006-01-02 15:04")))
	})

	return updated, nil
}

// Complete implements Service.Complete.
func (s *serviceImpl) Complete(ctx context.Context, taskID, closerID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var updated *domain.Task
	err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
		task, err := tasks.GetByID(ctx, taskID)
		if err != nil {
			return err
		}

		if !task.IsAssignee(closerID) {
			return fmt.Errorf("%w: only assignees may complete", domain.ErrPermissionDenied)
		}
		if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusInProgress {
			return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, task.Status)
		}

		now := s.clock.Now()
		if err := domain.ValidateTransition(task.Status, domain.TaskStatusCompleted); err != nil {
			return err
		}
		task.Status = domain.TaskStatusCompleted
		task.CompletedAt = &now
		task.AppendHistory("complete", closerID, now, "")
		task.UpdatedAt = now

		if err := tasks.Update(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, newServiceError("complete", "could not complete task", err)
	}

	log.Info("task completed by assignee",
		slog.String("task_id", updated.ID.String()),
		slog.String("closer_id", closerID.String()))

	s.send(ctx, func() error {
		return s.notifier.SendToGroup(ctx, updated.GroupID,
			fmt.Sprintf("Task %q was completed.", updated.Title))
	})

	return updated, nil
}

// MarkOverdue implements Service.MarkOverdue.
func (s *serviceImpl) MarkOverdue(ctx context.Context, groupID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	candidates, err := s.tasks.GetOverdueCandidates(ctx, groupID, now)
	if err != nil {
		return 0, newServiceError("mark_overdue", "could not list overdue candidates", err)
	}

	marked := 0
	for _, candidate := range candidates {
		taskID := candidate.ID
		var overdueTask *domain.Task
		err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
			task, err := tasks.GetByID(ctx, taskID)
			if err != nil {
				return err
			}

			// Recheck inside the write path; the sweep may race a submit or
			// another sweep invocation. An already-overdue task is a no-op,
			// which is what makes the zero-point score event fire exactly
			// once.
			if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusInProgress {
				return nil
			}
			if !task.DueTime.Before(now) {
				return nil
			}

			if err := domain.ValidateTransition(task.Status, domain.TaskStatusOverdue); err != nil {
				return err
			}
			task.Status = domain.TaskStatusOverdue
			task.OverdueSince = &now
			task.AppendHistory("overdue", uuid.Nil, now, "score_zero")
			task.UpdatedAt = now

			if err := tasks.Update(ctx, task); err != nil {
				return err
			}
			overdueTask = task
			return nil
		})
		if err != nil {
			// One failing task must not abort the sweep for the rest.
			log.Error("overdue transition failed",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if overdueTask != nil {
			marked++
			s.deduper.SendToGroupOnce(ctx, notify.OverdueKey(overdueTask.ID), notify.TTLTaskOverdue, overdueTask.GroupID,
				fmt.Sprintf("Task %q is overdue (was due %s).",
					overdueTask.Title, overdueTask.DueTime.Format("2006-01-02 15:04")))
		}
	}

	return marked, nil
}

// MarkLateReviews implements Service.MarkLateReviews.
func (s *serviceImpl) MarkLateReviews(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	late, err := s.tasks.GetLateForReview(ctx, now)
	if err != nil {
		return 0, newServiceError("mark_late_reviews", "could not list late reviews", err)
	}

	flagged := 0
	for _, candidate := range late {
		taskID := candidate.ID
		didFlag := false
		err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
			task, err := tasks.GetByID(ctx, taskID)
			if err != nil {
				return err
			}

			review := &task.Workflow.Review
			if review.Status != domain.ReviewStatusPending || review.LateReview {
				return nil
			}
			if review.ReviewDueAt == nil || !review.ReviewDueAt.Before(now) {
				return nil
			}

			review.LateReview = true
			task.AppendHistory("reject", uuid.Nil, now, "late_review")
			task.UpdatedAt = now

			if err := tasks.Update(ctx, task); err != nil {
				return err
			}
			didFlag = true
			return nil
		})
		if err == nil && didFlag {
			flagged++
		}
		if err != nil {
			log.Error("late review flagging failed",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
		}
	}

	return flagged, nil
}

// AutoApprove implements Service.AutoApprove.
func (s *serviceImpl) AutoApprove(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	late, err := s.tasks.GetLateForReview(ctx, now)
	if err != nil {
		return 0, newServiceError("auto_approve", "could not list late reviews", err)
	}

	approved := 0
	for _, candidate := range late {
		taskID := candidate.ID
		var closedTask *domain.Task
		err := s.runInTaskTx(ctx, func(ctx context.Context, tasks store.TaskStore) error {
			task, err := tasks.GetByID(ctx, taskID)
			if err != nil {
				return err
			}

			review := &task.Workflow.Review
			if review.Status != domain.ReviewStatusPending {
				return nil
			}
			if review.ReviewDueAt == nil || !review.ReviewDueAt.Before(now) {
				return nil
			}

			if err := s.close(task, domain.ReviewStatusAutoApproved, uuid.Nil, now); err != nil {
				return err
			}
			task.UpdatedAt = now

			if err := tasks.Update(ctx, task); err != nil {
				return err
			}
			closedTask = task
			return nil
		})
		if err != nil {
			log.Error("auto-approve failed",
				slog.String("task_id", taskID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if closedTask != nil {
			approved++
			s.send(ctx, func() error {
				return s.notifier.SendToGroup(ctx, closedTask.GroupID,
					fmt.Sprintf("Task %q was auto-approved after the review deadline passed.", closedTask.Title))
			})
		}
	}

	return approved, nil
}

// close moves a task into the completed state with the given review outcome.
func (s *serviceImpl) close(task *domain.Task, outcome domain.ReviewStatus, byUser uuid.UUID, now time.Time) error {
	if err := domain.ValidateTransition(task.Status, domain.TaskStatusCompleted); err != nil {
		return err
	}
	task.Status = domain.TaskStatusCompleted
	task.CompletedAt = &now

	review := &task.Workflow.Review
	review.Status = outcome
	review.ReviewedAt = &now

	action := "approve"
	if outcome == domain.ReviewStatusAutoApproved {
		action = "auto_approve"
	}
	task.AppendHistory(action, byUser, now, "")
	return nil
}

// send runs a fire-and-forget notification, logging any delivery failure.
func (s *serviceImpl) send(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("notification delivery failed",
			slog.String("error", err.Error()))
	}
}
