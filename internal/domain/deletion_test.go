package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRequiredApprovals(t *testing.T) {
	t.Parallel() // Enable parallel execution

	testCases := []struct {
		name     string
		members  int
		expected int
	}{
		{"single member group", 1, 1},
		{"two members", 2, 1},
		{"three members", 3, 1},
		{"four members", 4, 2},
		{"six members", 6, 2},
		{"seven members", 7, 3},
		{"ten members", 10, 4},
		{"thirty members", 30, 10},
		{"zero members still needs one", 0, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := RequiredApprovals(tc.members)
			if got != tc.expected {
				t.Errorf("RequiredApprovals(%d) = %d, expected %d", tc.members, got, tc.expected)
			}
		})
	}
}

func TestPendingDeletionRequestApprovals(t *testing.T) {
	t.Parallel()
	requester := uuid.New()
	now := time.Now().UTC()

	req := NewPendingDeletionRequest(requester, []DeletionTaskSnapshot{
		{ID: uuid.New(), Title: "stale task", Status: TaskStatusOverdue},
	}, 10, now)

	if req.RequiredApprovals != 4 {
		t.Fatalf("Expected 4 required approvals for 10 members, got %d", req.RequiredApprovals)
	}

	voter := uuid.New()
	if !req.AddApproval(voter, now) {
		t.Error("Expected first approval to be recorded")
	}

	// Duplicate vote from the same user is a no-op.
	if req.AddApproval(voter, now.Add(time.Minute)) {
		t.Error("Expected duplicate approval to be ignored")
	}

	if len(req.Approvals) != 1 {
		t.Fatalf("Expected 1 approval, got %d", len(req.Approvals))
	}

	if req.ThresholdReached() {
		t.Error("Expected threshold not reached with 1 of 4 approvals")
	}

	for i := 0; i < 3; i++ {
		req.AddApproval(uuid.New(), now)
	}

	if !req.ThresholdReached() {
		t.Error("Expected threshold reached with 4 of 4 approvals")
	}
}
