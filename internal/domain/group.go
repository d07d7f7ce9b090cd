package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Group-specific validation errors
var (
	// ErrGroupIDEmpty is returned when a group ID is empty or nil.
	ErrGroupIDEmpty = errors.New("group ID cannot be empty")

	// ErrGroupNameEmpty is returned when a group's name is empty.
	ErrGroupNameEmpty = errors.New("group name cannot be empty")
)

// MemberRole is the role a user holds within a group.
type MemberRole string

// Possible member roles.
const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Member is one user's membership in a group.
type Member struct {
	UserID      uuid.UUID  `json:"userId"`
	GroupID     uuid.UUID  `json:"groupId"`
	DisplayName string     `json:"displayName"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// IsAdmin reports whether the member holds the admin role.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// Group is a chat group's task configuration. DefaultReminders and
// DefaultTaskDuration apply to tasks that do not carry their own overrides;
// PendingDeletion holds the group's single in-flight bulk deletion vote.
type Group struct {
	ID                  uuid.UUID               `json:"id"`
	Name                string                  `json:"name"`
	Timezone            string                  `json:"timezone"`
	DefaultReminders    []time.Duration         `json:"defaultReminders,omitempty"`
	DefaultTaskDuration time.Duration           `json:"defaultTaskDuration,omitempty"`
	PendingDeletion     *PendingDeletionRequest `json:"pendingDeletion,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// Validate checks if the Group has valid data.
func (g *Group) Validate() error {
	if g.ID == uuid.Nil {
		return ErrGroupIDEmpty
	}

	if g.Name == "" {
		return ErrGroupNameEmpty
	}

	return nil
}
