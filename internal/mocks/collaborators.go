package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/membership"
	"github.com/taskhive/taskhive/internal/notify"
)

// Verify interface compliance at compile time
var (
	_ membership.Directory = (*StaticDirectory)(nil)
	_ notify.Notifier      = (*RecordingNotifier)(nil)
)

// StaticDirectory is a fixed-roster membership.Directory for tests.
type StaticDirectory struct {
	Members map[uuid.UUID][]*domain.Member
}

// NewStaticDirectory creates an empty StaticDirectory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{Members: make(map[uuid.UUID][]*domain.Member)}
}

// AddMember registers a user in a group with the given role.
func (d *StaticDirectory) AddMember(groupID, userID uuid.UUID, name string, role domain.MemberRole) {
	d.Members[groupID] = append(d.Members[groupID], &domain.Member{
		UserID:      userID,
		GroupID:     groupID,
		DisplayName: name,
		Role:        role,
	})
}

// GetMembers implements membership.Directory.
func (d *StaticDirectory) GetMembers(_ context.Context, groupID uuid.UUID) ([]*domain.Member, error) {
	return d.Members[groupID], nil
}

// IsAdmin implements membership.Directory.
func (d *StaticDirectory) IsAdmin(_ context.Context, userID, groupID uuid.UUID) (bool, error) {
	for _, m := range d.Members[groupID] {
		if m.UserID == userID {
			return m.IsAdmin(), nil
		}
	}
	return false, nil
}

// IsMember implements membership.Directory.
func (d *StaticDirectory) IsMember(_ context.Context, userID, groupID uuid.UUID) (bool, error) {
	for _, m := range d.Members[groupID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Delivery is one message captured by RecordingNotifier.
type Delivery struct {
	GroupID uuid.UUID
	UserID  uuid.UUID
	Message string
}

// RecordingNotifier is a notify.Notifier that captures deliveries for
// assertions. Err, when set, is returned by every send.
type RecordingNotifier struct {
	mu         sync.Mutex
	GroupSends []Delivery
	UserSends  []Delivery
	Err        error
}

// NewRecordingNotifier creates an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// SendToGroup implements notify.Notifier.
func (n *RecordingNotifier) SendToGroup(_ context.Context, groupID uuid.UUID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.GroupSends = append(n.GroupSends, Delivery{GroupID: groupID, Message: message})
	return nil
}

// SendToUser implements notify.Notifier.
func (n *RecordingNotifier) SendToUser(_ context.Context, userID uuid.UUID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.UserSends = append(n.UserSends, Delivery{UserID: userID, Message: message})
	return nil
}

// GroupMessages returns the captured group messages in order.
func (n *RecordingNotifier) GroupMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.GroupSends))
	for i, d := range n.GroupSends {
		out[i] = d.Message
	}
	return out
}

// UserMessages returns the captured direct messages in order.
func (n *RecordingNotifier) UserMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.UserSends))
	for i, d := range n.UserSends {
		out[i] = d.Message
	}
	return out
}
