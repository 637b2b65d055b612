// Package delivery defines the adapter interfaces the dispatcher fans
// out through. Each channel is behind a narrow interface so the
// application layer stays decoupled from transport libraries.
package delivery

import (
	"context"

	"finance_notification_service/internal/domain/notification"
)

// SendReport summarizes one fan-out over live connections.
type SendReport struct {
	Delivered int
	Pruned    int
}

// InAppSender pushes envelopes to whatever live connections an owner
// currently has. Zero connections is not a failure.
type InAppSender interface {
	SendToOwner(ownerID int64, env notification.Envelope) SendReport
	Broadcast(env notification.Envelope) SendReport
}

// EmailSender delivers one message to one address. deliveryKey is the
// idempotent identifier receivers can dedup on.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body, deliveryKey string) error
}

// PushResult is one device token's outcome. Invalid reports that the
// gateway rejected the token itself, so it should not be retried.
type PushResult struct {
	Token   string
	Invalid bool
	Err     error
}

// PushSender delivers one message to a set of device tokens with
// per-token results.
type PushSender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushResult, error)
}

// TelegramSender delivers a text message to a chat.
type TelegramSender interface {
	SendMessage(chatID int64, text string) error
}
