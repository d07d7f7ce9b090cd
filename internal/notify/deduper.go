package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/platform/logger"
)

// Deduper wraps a Notifier with the idempotency Guard. Each send names a
// dedup key and a class TTL; a key already present in the guard turns the
// send into a no-op.
//
// A guard failure (e.g. redis unreachable) does not block delivery: the
// durable per-task reminder history is the authoritative duplicate check, so
// the deduper logs the guard error and sends anyway.
type Deduper struct {
	notifier Notifier
	guard    Guard
	logger   *slog.Logger
}

// NewDeduper creates a Deduper over the given notifier and guard.
func NewDeduper(notifier Notifier, guard Guard, log *slog.Logger) *Deduper {
	if log == nil {
		log = slog.Default()
	}
	return &Deduper{
		notifier: notifier,
		guard:    guard,
		logger:   log.With(slog.String("component", "notify_deduper")),
	}
}

// SendToGroupOnce delivers a group message unless the key is already held.
// It returns true if the message was handed to the notifier.
func (d *Deduper) SendToGroupOnce(
	ctx context.Context,
	key string,
	ttl time.Duration,
	groupID uuid.UUID,
	message string,
) bool {
	if !d.acquire(ctx, key, ttl) {
		return false
	}

	if err := d.notifier.SendToGroup(ctx, groupID, message); err != nil {
		// Best-effort delivery: log and move on, the next sweep re-evaluates.
		logger.FromContextOrDefault(ctx, d.logger).Warn("group notification failed",
			slog.String("group_id", groupID.String()),
			slog.String("dedup_key", key),
			slog.String("error", err.Error()))
	}
	return true
}

// SendToUserOnce delivers a direct message unless the key is already held.
// It returns true if the message was handed to the notifier.
func (d *Deduper) SendToUserOnce(
	ctx context.Context,
	key string,
	ttl time.Duration,
	userID uuid.UUID,
	message string,
) bool {
	if !d.acquire(ctx, key, ttl) {
		return false
	}

	if err := d.notifier.SendToUser(ctx, userID, message); err != nil {
		logger.FromContextOrDefault(ctx, d.logger).Warn("user notification failed",
			slog.String("user_id", userID.String()),
			slog.String("dedup_key", key),
			slog.String("error", err.Error()))
	}
	return true
}

func (d *Deduper) acquire(ctx context.Context, key string, ttl time.Duration) bool {
	inserted, err := d.guard.TrySet(ctx, key, ttl)
	if err != nil {
		logger.FromContextOrDefault(ctx, d.logger).Warn("dedup guard unavailable, sending anyway",
			slog.String("dedup_key", key),
			slog.String("error", err.Error()))
		return true
	}
	return inserted
}
