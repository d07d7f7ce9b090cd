package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/membership"
	"github.com/taskhive/taskhive/internal/platform/logger"
)

// PostgresMemberDirectory implements the membership.Directory interface over
// the group_members table. The table is written by the surrounding chat
// platform integration; this side only reads it.
type PostgresMemberDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresMemberDirectory creates a new PostgreSQL implementation of the
// membership.Directory interface.
// If logger is nil, a default logger will be used.
func NewPostgresMemberDirectory(db *sql.DB, logger *slog.Logger) *PostgresMemberDirectory {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresMemberDirectory{
		db:     db,
		logger: logger.With(slog.String("component", "member_directory")),
	}
}

// Ensure PostgresMemberDirectory implements membership.Directory interface
var _ membership.Directory = (*PostgresMemberDirectory)(nil)

// GetMembers implements membership.Directory.GetMembers
func (d *PostgresMemberDirectory) GetMembers(ctx context.Context, groupID uuid.UUID) ([]*domain.Member, error) {
	query := `
		SELECT user_id, group_id, display_name, role, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at
	`
	rows, err := d.db.QueryContext(ctx, query, groupID)
	if err != nil {
		logger.FromContextOrDefault(ctx, d.logger).Error("member query failed",
			slog.String("error", err.Error()),
			slog.String("group_id", groupID.String()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []*domain.Member
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(
			&member.UserID, &member.GroupID, &member.DisplayName,
			&member.Role, &member.JoinedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, &member)
	}
	return members, rows.Err()
}

// IsAdmin implements membership.Directory.IsAdmin
func (d *PostgresMemberDirectory) IsAdmin(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	query := `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`

	var role domain.MemberRole
	err := d.db.QueryRowContext(ctx, query, groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// IsMember implements membership.Directory.IsMember
func (d *PostgresMemberDirectory) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2
		)
	`
	var exists bool
	if err := d.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
