package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/taskhive/taskhive/internal/platform/clock"
)

// recordingNotifier captures sends for assertions.
type recordingNotifier struct {
	mu         sync.Mutex
	groupSends []string
	userSends  []string
	err        error
}

func (n *recordingNotifier) SendToGroup(_ context.Context, groupID uuid.UUID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groupSends = append(n.groupSends, message)
	return n.err
}

func (n *recordingNotifier) SendToUser(_ context.Context, userID uuid.UUID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.userSends = append(n.userSends, message)
	return n.err
}

// failingGuard simulates an unavailable guard backend.
type failingGuard struct{}

func (failingGuard) TrySet(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("guard down")
}

func TestDeduperSuppressesDuplicates(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	sink := &recordingNotifier{}
	deduper := NewDeduper(sink, NewMemoryGuard(clk), nil)
	ctx := context.Background()
	groupID := uuid.New()
	key := ReminderKey(uuid.New(), "P1D")

	sent := deduper.SendToGroupOnce(ctx, key, TTLTaskReminder, groupID, "due tomorrow")
	assert.True(t, sent)

	sent = deduper.SendToGroupOnce(ctx, key, TTLTaskReminder, groupID, "due tomorrow")
	assert.False(t, sent, "second send under the same key should be suppressed")

	assert.Len(t, sink.groupSends, 1)

	// After the TTL, a legitimate new trigger goes through.
	clk.Advance(TTLTaskReminder + time.Minute)
	sent = deduper.SendToGroupOnce(ctx, key, TTLTaskReminder, groupID, "due tomorrow")
	assert.True(t, sent)
	assert.Len(t, sink.groupSends, 2)
}

func TestDeduperUserSends(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	sink := &recordingNotifier{}
	deduper := NewDeduper(sink, NewMemoryGuard(clk), nil)
	ctx := context.Background()
	userID := uuid.New()

	assert.True(t, deduper.SendToUserOnce(ctx, "k1", TTLTaskCreated, userID, "review requested"))
	assert.False(t, deduper.SendToUserOnce(ctx, "k1", TTLTaskCreated, userID, "review requested"))
	assert.Len(t, sink.userSends, 1)
}

func TestDeduperDeliveryFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	sink := &recordingNotifier{err: errors.New("transport down")}
	deduper := NewDeduper(sink, NewMemoryGuard(clk), nil)

	// A transport failure is logged, not returned; the key stays held.
	sent := deduper.SendToGroupOnce(context.Background(), "k2", TTLGroupSummary, uuid.New(), "summary")
	assert.True(t, sent)
	assert.Len(t, sink.groupSends, 1)
}

func TestDeduperSendsWhenGuardUnavailable(t *testing.T) {
	t.Parallel()
	sink := &recordingNotifier{}
	deduper := NewDeduper(sink, failingGuard{}, nil)

	// The durable reminder history is the authoritative duplicate check, so
	// guard failure must not block delivery.
	sent := deduper.SendToGroupOnce(context.Background(), "k3", TTLTaskReminder, uuid.New(), "reminder")
	assert.True(t, sent)
	assert.Len(t, sink.groupSends, 1)
}
