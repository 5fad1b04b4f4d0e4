package domain

import "context"

type NotificationKind string

const (
	NotificationInfo        NotificationKind = "info"
	NotificationDestructive NotificationKind = "destructive"
)

// Notification is a short user-facing message shown outside the chat log.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	CreatedAt   Timestamp        `json:"created_at"`
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
