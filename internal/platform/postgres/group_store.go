package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/platform/logger"
	"github.com/taskhive/taskhive/internal/store"
)

// PostgresGroupStore implements the store.GroupStore interface
// using a PostgreSQL database as the storage backend.
//
// The pending deletion request is stored as a JSONB column with its field
// names preserved; clearing it on execution is a plain column update within
// the surrounding transaction.
type PostgresGroupStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGroupStore creates a new PostgreSQL implementation of the GroupStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresGroupStore(db store.DBTX, logger *slog.Logger) *PostgresGroupStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresGroupStore{
		db:     db,
		logger: logger.With(slog.String("component", "group_store")),
	}
}

// Ensure PostgresGroupStore implements store.GroupStore interface
var _ store.GroupStore = (*PostgresGroupStore)(nil)

const groupColumns = `
	id, name, timezone, default_reminders, default_task_duration,
	pending_deletion, created_at, updated_at
`

// GetByID implements store.GroupStore.GetByID
func (s *PostgresGroupStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	group, err := scanGroup(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGroupNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get group",
			slog.String("error", err.Error()),
			slog.String("group_id", id.String()))
		return nil, err
	}
	return group, nil
}

// List implements store.GroupStore.List
func (s *PostgresGroupStore) List(ctx context.Context) ([]*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("group query failed",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []*domain.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// Update implements store.GroupStore.Update
func (s *PostgresGroupStore) Update(ctx context.Context, group *domain.Group) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := group.Validate(); err != nil {
		log.Warn("group validation failed during update",
			slog.String("error", err.Error()),
			slog.String("group_id", group.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	reminders, pending, err := encodeGroupJSON(group)
	if err != nil {
		return err
	}

	query := `
		UPDATE groups
		SET name = $2, timezone = $3, default_reminders = $4,
			default_task_duration = $5, pending_deletion = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		group.ID, group.Name, group.Timezone, reminders,
		group.DefaultTaskDuration, pending, group.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update group",
			slog.String("error", err.Error()),
			slog.String("group_id", group.ID.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrGroupNotFound
	}
	return nil
}

// WithTx implements store.GroupStore.WithTx
func (s *PostgresGroupStore) WithTx(tx *sql.Tx) store.GroupStore {
	return &PostgresGroupStore{db: tx, logger: s.logger}
}

func encodeGroupJSON(group *domain.Group) (reminders, pending []byte, err error) {
	if reminders, err = json.Marshal(group.DefaultReminders); err != nil {
		return nil, nil, fmt.Errorf("encode default reminders: %w", err)
	}
	if group.PendingDeletion != nil {
		if pending, err = json.Marshal(group.PendingDeletion); err != nil {
			return nil, nil, fmt.Errorf("encode pending deletion: %w", err)
		}
	}
	return reminders, pending, nil
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var group domain.Group
	var reminders, pending []byte
	err := row.Scan(
		&group.ID, &group.Name, &group.Timezone, &reminders,
		&group.DefaultTaskDuration, &pending, &group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reminders, &group.DefaultReminders); err != nil {
		return nil, fmt.Errorf("decode default reminders: %w", err)
	}
	if len(pending) > 0 {
		group.PendingDeletion = &domain.PendingDeletionRequest{}
		if err := json.Unmarshal(pending, group.PendingDeletion); err != nil {
			return nil, fmt.Errorf("decode pending deletion: %w", err)
		}
	}
	return &group, nil
}
