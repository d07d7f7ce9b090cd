// Package membership provides read-only access to group rosters and roles.
package membership

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
)

// Directory looks up group membership. The core never mutates membership;
// roster management belongs to the surrounding chat platform.
type Directory interface {
	// GetMembers returns the current roster of the group.
	GetMembers(ctx context.Context, groupID uuid.UUID) ([]*domain.Member, error)

	// IsAdmin reports whether the user holds the admin role in the group.
	// A user who is not a member at all is not an admin.
	IsAdmin(ctx context.Context, userID, groupID uuid.UUID) (bool, error)

	// IsMember reports whether the user currently belongs to the group.
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
}
