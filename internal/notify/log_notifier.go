package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogNotifier is a Notifier that writes messages to the structured log
// instead of a chat platform. It is the delivery backend until a platform
// adapter is plugged in, and keeps the server runnable without one.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{logger: log.With(slog.String("component", "log_notifier"))}
}

// SendToGroup implements Notifier.
func (n *LogNotifier) SendToGroup(ctx context.Context, groupID uuid.UUID, message string) error {
	n.logger.InfoContext(ctx, "group notification",
		slog.String("group_id", groupID.String()),
		slog.String("message", message))
	return nil
}

// SendToUser implements Notifier.
func (n *LogNotifier) SendToUser(ctx context.Context, userID uuid.UUID, message string) error {
	n.logger.InfoContext(ctx, "user notification",
		slog.String("user_id", userID.String()),
		slog.String("message", message))
	return nil
}
