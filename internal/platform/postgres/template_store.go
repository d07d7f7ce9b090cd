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

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// PostgresTemplateStore implements the store.TemplateStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTemplateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTemplateStore creates a new PostgreSQL implementation of the TemplateStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTemplateStore(db store.DBTX, logger *slog.Logger) *PostgresTemplateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTemplateStore{
		db:     db,
		logger: logger.With(slog.String("component", "template_store")),
	}
}

// Ensure PostgresTemplateStore implements store.TemplateStore interface
var _ store.TemplateStore = (*PostgresTemplateStore)(nil)

const templateColumns = `
	id, group_id, title, description, assignees, created_by, recurrence,
	week_day, day_of_month, time_of_day, timezone, require_attachment,
	priority, tags, task_duration, active, last_run_at, next_run_at,
	total_instances, created_at, updated_at
`

// Create implements store.TemplateStore.Create
func (s *PostgresTemplateStore) Create(ctx context.Context, tmpl *domain.RecurringTaskTemplate) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := tmpl.Validate(); err != nil {
		log.Warn("template validation failed during create",
			slog.String("error", err.Error()),
			slog.String("template_id", tmpl.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	assignees, tags, err := encodeTemplateJSON(tmpl)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recurring_task_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		tmpl.ID, tmpl.GroupID, tmpl.Title, tmpl.Description, assignees,
		tmpl.CreatedBy, tmpl.Recurrence, tmpl.WeekDay, tmpl.DayOfMonth,
		tmpl.TimeOfDay, tmpl.Timezone, tmpl.RequireAttachment, tmpl.Priority,
		tags, tmpl.TaskDuration, tmpl.Active, tmpl.LastRunAt, tmpl.NextRunAt,
		tmpl.TotalInstances, tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		log.Error("failed to create template",
			slog.String("error", err.Error()),
			slog.String("template_id", tmpl.ID.String()))
		return err
	}
	return nil
}

// GetByID implements store.TemplateStore.GetByID
func (s *PostgresTemplateStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RecurringTaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM recurring_task_templates WHERE id = $1`

	tmpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTemplateNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get template",
			slog.String("error", err.Error()),
			slog.String("template_id", id.String()))
		return nil, err
	}
	return tmpl, nil
}

// GetActiveDue implements store.TemplateStore.GetActiveDue
func (s *PostgresTemplateStore) GetActiveDue(ctx context.Context, now time.Time) ([]*domain.RecurringTaskTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM recurring_task_templates
		WHERE active AND next_run_at <= $1
		ORDER BY next_run_at
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("template query failed",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var templates []*domain.RecurringTaskTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// Update implements store.TemplateStore.Update
func (s *PostgresTemplateStore) Update(ctx context.Context, tmpl *domain.RecurringTaskTemplate) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	assignees, tags, err := encodeTemplateJSON(tmpl)
	if err != nil {
		return err
	}

	query := `
		UPDATE recurring_task_templates
		SET group_id = $2, title = $3, description = $4, assignees = $5,
			created_by = $6, recurrence = $7, week_day = $8, day_of_month = $9,
			time_of_day = $10, timezone = $11, require_attachment = $12,
			priority = $13, tags = $14, task_duration = $15, active = $16,
			last_run_at = $17, next_run_at = $18, total_instances = $19,
			updated_at = $20
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		tmpl.ID, tmpl.GroupID, tmpl.Title, tmpl.Description, assignees,
		tmpl.CreatedBy, tmpl.Recurrence, tmpl.WeekDay, tmpl.DayOfMonth,
		tmpl.TimeOfDay, tmpl.Timezone, tmpl.RequireAttachment, tmpl.Priority,
		tags, tmpl.TaskDuration, tmpl.Active, tmpl.LastRunAt, tmpl.NextRunAt,
		tmpl.TotalInstances, tmpl.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update template",
			slog.String("error", err.Error()),
			slog.String("template_id", tmpl.ID.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrTemplateNotFound
	}
	return nil
}

// WithTx implements store.TemplateStore.WithTx
func (s *PostgresTemplateStore) WithTx(tx *sql.Tx) store.TemplateStore {
	return &PostgresTemplateStore{db: tx, logger: s.logger}
}

func encodeTemplateJSON(tmpl *domain.RecurringTaskTemplate) (assignees, tags []byte, err error) {
	if assignees, err = json.Marshal(tmpl.Assignees); err != nil {
		return nil, nil, fmt.Errorf("encode assignees: %w", err)
	}
	if tags, err = json.Marshal(tmpl.Tags); err != nil {
		return nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	return assignees, tags, nil
}

func scanTemplate(row rowScanner) (*domain.RecurringTaskTemplate, error) {
	var tmpl domain.RecurringTaskTemplate
	var assignees, tags []byte
	err := row.Scan(
		&tmpl.ID, &tmpl.GroupID, &tmpl.Title, &tmpl.Description, &assignees,
		&tmpl.CreatedBy, &tmpl.Recurrence, &tmpl.WeekDay, &tmpl.DayOfMonth,
		&tmpl.TimeOfDay, &tmpl.Timezone, &tmpl.RequireAttachment,
		&tmpl.Priority, &tags, &tmpl.TaskDuration, &tmpl.Active,
		&tmpl.LastRunAt, &tmpl.NextRunAt, &tmpl.TotalInstances,
		&tmpl.CreatedAt, &tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(assignees, &tmpl.Assignees); err != nil {
		return nil, fmt.Errorf("decode assignees: %w", err)
	}
	if err := json.Unmarshal(tags, &tmpl.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &tmpl, nil
}
