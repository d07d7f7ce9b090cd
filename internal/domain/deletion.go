package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeletionTaskSnapshot captures the identifying fields of a task at the time
// a bulk deletion was requested, so voters see what they are approving even
// if the live task changes afterwards.
type DeletionTaskSnapshot struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Status        TaskStatus `json:"status"`
	AssigneeNames []string   `json:"assigneeNames,omitempty"`
}

// DeletionApproval is one member's vote to execute a pending deletion.
type DeletionApproval struct {
	UserID     uuid.UUID `json:"userId"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// PendingDeletionRequest is the single in-flight bulk deletion vote for a
// group. It is embedded in the group record and removed atomically with the
// execution of the deletion.
type PendingDeletionRequest struct {
	ID                uuid.UUID              `json:"id"`
	RequestedBy       uuid.UUID              `json:"requestedBy"`
	CreatedAt         time.Time              `json:"createdAt"`
	Tasks             []DeletionTaskSnapshot `json:"tasks"`
	TotalMembers      int                    `json:"totalMembers"`
	RequiredApprovals int                    `json:"requiredApprovals"`
	Approvals         []DeletionApproval     `json:"approvals"`
}

// RequiredApprovals computes the quorum for a group of the given size:
// a third of the membership rounded up, never below one, so tiny groups
// remain operable.
func RequiredApprovals(totalMembers int) int {
	required := (totalMembers + 2) / 3
	if required < 1 {
		required = 1
	}
	return required
}

// NewPendingDeletionRequest creates a deletion vote over the given task
// snapshots, deriving the approval threshold from the member count.
func NewPendingDeletionRequest(
	requestedBy uuid.UUID,
	tasks []DeletionTaskSnapshot,
	totalMembers int,
	now time.Time,
) *PendingDeletionRequest {
	return &PendingDeletionRequest{
		ID:                uuid.New(),
		RequestedBy:       requestedBy,
		CreatedAt:         now,
		Tasks:             tasks,
		TotalMembers:      totalMembers,
		RequiredApprovals: RequiredApprovals(totalMembers),
		Approvals:         nil,
	}
}

// HasApproved reports whether the given user already voted on this request.
func (p *PendingDeletionRequest) HasApproved(userID uuid.UUID) bool {
	for _, a := range p.Approvals {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// AddApproval records a vote. Duplicate votes by the same user are ignored;
// the return value reports whether the approval was newly added.
func (p *PendingDeletionRequest) AddApproval(userID uuid.UUID, at time.Time) bool {
	if p.HasApproved(userID) {
		return false
	}
	p.Approvals = append(p.Approvals, DeletionApproval{UserID: userID, ApprovedAt: at})
	return true
}

// ThresholdReached reports whether enough distinct approvals have been
// collected to execute the deletion.
func (p *PendingDeletionRequest) ThresholdReached() bool {
	return len(p.Approvals) >= p.RequiredApprovals
}
