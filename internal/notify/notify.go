// Package notify defines the outbound notification surface of the core and
// the idempotency guard that prevents duplicate deliveries.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Notifier delivers messages to a group or a single user. Delivery is
// best-effort and fire-and-forget from the core's perspective: failures are
// logged by the implementation, not surfaced as core errors. The hourly
// sweeps re-evaluate anyway, so a lost reminder heals on the next pass.
type Notifier interface {
	// SendToGroup delivers a message to the group's shared channel.
	SendToGroup(ctx context.Context, groupID uuid.UUID, message string) error

	// SendToUser delivers a direct message to one user.
	SendToUser(ctx context.Context, userID uuid.UUID, message string) error
}
