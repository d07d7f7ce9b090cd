package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// PostgreSQL error codes
const (
	pgUniqueViolationCode     = "23505"
	pgForeignKeyViolationCode = "23503"
)

// isUniqueViolation checks if the given error is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
//
// Queryable fields live in their own columns; the workflow sub-record,
// reminder history, and the other list-shaped fields are stored as JSONB with
// their field names preserved, so rows written by earlier deployments of the
// stored format stay readable.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `
	id, group_id, title, description, status, priority, due_time, start_time,
	tags, assignees, created_by, require_attachment, custom_reminders,
	reminders_sent, workflow, recurring_task_id, recurring_instance,
	completed_at, overdue_since, created_at, updated_at
`

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	enc, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.GroupID, task.Title, task.Description, task.Status,
		task.Priority, task.DueTime, task.StartTime, enc.tags, enc.assignees,
		task.CreatedBy, task.RequireAttachment, enc.customReminders,
		enc.remindersSent, enc.workflow, task.RecurringTaskID,
		task.RecurringInstance, task.CompletedAt, task.OverdueSince,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("group_id", task.GroupID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}
	return task, nil
}

// Update implements store.TaskStore.Update
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	enc, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET group_id = $2, title = $3, description = $4, status = $5,
			priority = $6, due_time = $7, start_time = $8, tags = $9,
			assignees = $10, created_by = $11, require_attachment = $12,
			custom_reminders = $13, reminders_sent = $14, workflow = $15,
			recurring_task_id = $16, recurring_instance = $17,
			completed_at = $18, overdue_since = $19, updated_at = $20
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		task.ID, task.GroupID, task.Title, task.Description, task.Status,
		task.Priority, task.DueTime, task.StartTime, enc.tags, enc.assignees,
		task.CreatedBy, task.RequireAttachment, enc.customReminders,
		enc.remindersSent, enc.workflow, task.RecurringTaskID,
		task.RecurringInstance, task.CompletedAt, task.OverdueSince,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// GetDueForReminder implements store.TaskStore.GetDueForReminder
func (s *PostgresTaskStore) GetDueForReminder(ctx context.Context, from, until time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND due_time > $1 AND due_time <= $2
		ORDER BY due_time
	`
	return s.queryTasks(ctx, query, from, until)
}

// GetOverdueCandidates implements store.TaskStore.GetOverdueCandidates
func (s *PostgresTaskStore) GetOverdueCandidates(ctx context.Context, groupID uuid.UUID, before time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE group_id = $1
		  AND status IN ('pending', 'in_progress')
		  AND due_time < $2
		ORDER BY due_time
	`
	return s.queryTasks(ctx, query, groupID, before)
}

// GetOverdue implements store.TaskStore.GetOverdue
func (s *PostgresTaskStore) GetOverdue(ctx context.Context, groupID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE group_id = $1 AND status = 'overdue'
		ORDER BY due_time
	`
	return s.queryTasks(ctx, query, groupID)
}

// GetOpen implements store.TaskStore.GetOpen
func (s *PostgresTaskStore) GetOpen(ctx context.Context, groupID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE group_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY due_time
	`
	return s.queryTasks(ctx, query, groupID)
}

// GetLateForReview implements store.TaskStore.GetLateForReview
func (s *PostgresTaskStore) GetLateForReview(ctx context.Context, before time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE workflow -> 'review' ->> 'status' = 'pending'
		  AND (workflow -> 'review' ->> 'reviewDueAt')::timestamptz < $1
		ORDER BY due_time
	`
	return s.queryTasks(ctx, query, before)
}

// GetCompletedSince implements store.TaskStore.GetCompletedSince
func (s *PostgresTaskStore) GetCompletedSince(ctx context.Context, groupID uuid.UUID, since time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE group_id = $1 AND status = 'completed' AND completed_at >= $2
		ORDER BY completed_at
	`
	return s.queryTasks(ctx, query, groupID, since)
}

// RecurringInstanceExists implements store.TaskStore.RecurringInstanceExists
func (s *PostgresTaskStore) RecurringInstanceExists(ctx context.Context, templateID uuid.UUID, instance int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE recurring_task_id = $1 AND recurring_instance = $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, templateID, instance).Scan(&exists); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to check recurring instance",
			slog.String("error", err.Error()),
			slog.String("template_id", templateID.String()))
		return false, err
	}
	return exists, nil
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// queryTasks runs a multi-row task query and scans the result set.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("task query failed",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// taskJSON holds the JSONB-encoded list fields of a task row.
type taskJSON struct {
	tags            []byte
	assignees       []byte
	customReminders []byte
	remindersSent   []byte
	workflow        []byte
}

func encodeTaskJSON(task *domain.Task) (*taskJSON, error) {
	var enc taskJSON
	var err error
	if enc.tags, err = json.Marshal(task.Tags); err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	if enc.assignees, err = json.Marshal(task.Assignees); err != nil {
		return nil, fmt.Errorf("encode assignees: %w", err)
	}
	if enc.customReminders, err = json.Marshal(task.CustomReminders); err != nil {
		return nil, fmt.Errorf("encode custom reminders: %w", err)
	}
	if enc.remindersSent, err = json.Marshal(task.RemindersSent); err != nil {
		return nil, fmt.Errorf("encode reminders sent: %w", err)
	}
	if enc.workflow, err = json.Marshal(task.Workflow); err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return &enc, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var enc taskJSON
	err := row.Scan(
		&task.ID, &task.GroupID, &task.Title, &task.Description, &task.Status,
		&task.Priority, &task.DueTime, &task.StartTime, &enc.tags,
		&enc.assignees, &task.CreatedBy, &task.RequireAttachment,
		&enc.customReminders, &enc.remindersSent, &enc.workflow,
		&task.RecurringTaskID, &task.RecurringInstance, &task.CompletedAt,
		&task.OverdueSince, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(enc.tags, &task.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(enc.assignees, &task.Assignees); err != nil {
		return nil, fmt.Errorf("decode assignees: %w", err)
	}
	if err := json.Unmarshal(enc.customReminders, &task.CustomReminders); err != nil {
		return nil, fmt.Errorf("decode custom reminders: %w", err)
	}
	if err := json.Unmarshal(enc.remindersSent, &task.RemindersSent); err != nil {
		return nil, fmt.Errorf("decode reminders sent: %w", err)
	}
	if err := json.Unmarshal(enc.workflow, &task.Workflow); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &task, nil
}
