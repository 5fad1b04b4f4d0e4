// Package notify holds the notifications raised for one chat until the
// front end collects them.
package notify

import (
	"context"
	"sync"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// DefaultCapacity bounds an inbox nobody drains.
const DefaultCapacity = 20

// Inbox is a bounded FIFO of notifications. When full, the oldest entry is
// dropped. It implements domain.Notifier.
type Inbox struct {
	capacity int

	mu      sync.Mutex
	pending []domain.Notification
	dropped int
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Inbox{capacity: capacity}
}

func (b *Inbox) Notify(ctx context.Context, n domain.Notification) {
	log := observability.LoggerFromContext(ctx).With(
		"title", n.Title,
		"kind", n.Kind,
	)
	if n.Kind == domain.NotificationDestructive {
		log.Warn("notification raised", "description", n.Description)
	} else {
		log.Info("notification raised")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == b.capacity {
		b.pending = b.pending[1:]
		b.dropped++
	}
	b.pending = append(b.pending, n)
}

// Drain returns pending notifications oldest first and empties the inbox.
func (b *Inbox) Drain() []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.pending
	b.pending = nil
	if out == nil {
		return []domain.Notification{}
	}
	return out
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped counts notifications discarded because the inbox was full.
func (b *Inbox) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
