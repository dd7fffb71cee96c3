package adapter

import (
	"context"

	"telegram-bot-dispatch/internal/domain/model"
)

// UpdateSource supplies the ordered stream of inbound updates. The channel is
// closed when the source terminates; transport errors end the stream and are
// surfaced by the source's own Err method where applicable.
//
// Delivery is at-least-once: a source restarted after a crash may replay
// updates from the last acknowledged identity, so handlers must tolerate
// redelivery.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan model.Update, error)
}

// Notifier sends outbound replies. The dispatch core itself performs no
// network I/O; a reply sink uses this port.
type Notifier interface {
	SendReply(ctx context.Context, chatID int64, text string) error
}

// AuthPolicy decides whether a sender may use the bot.
type AuthPolicy interface {
	Allowed(ctx context.Context, userID int64) (bool, error)
}
