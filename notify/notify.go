// Package notify dispatches per-recipient delivery notifications after
// a distribution run.
package notify

import (
	"context"
	"time"
)

// Summary is the payload of one recipient notification.
type Summary struct {
	RecipientID string
	Address     string
	Files       []string
	Destination string
	DeliveredAt time.Time
}

// Notifier sends one notification per recipient. A failure is recorded
// by the caller and must not block other recipients.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}
