package notification

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/models"
)

// Notifier delivers a persisted notification over one out-of-band channel
// (push, email digest, ...). Delivery failures never fail the operation that
// produced the notification.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// LogNotifier writes notifications to the service log. Used when no push
// channel is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, notif models.Notification) error {
	event := n.Logger.Info()
	if notif.Severity == models.NotificationSeverityError {
		event = n.Logger.Warn()
	}
	event.
		Str("event_type", string(notif.EventType)).
		Str("title", notif.Title).
		Msg(notif.Message)
	return nil
}

func (n LogNotifier) String() string { return "log" }
