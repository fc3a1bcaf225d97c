// Package notify fans runner alerts (backoff, failed executions, lock
// changes) out to chat senders. Repeats of the same alert are suppressed for
// a TTL.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event types the runner emits.
const (
	EventBackoff       = "backoff"
	EventExecutionFail = "execution_failed"
	EventLockChange    = "lock_change"
	EventLifecycle     = "lifecycle"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender. Only allowed event types pass; an
// empty allow list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger

	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewNotifier creates a Notifier. Identical event+title pairs are sent at
// most once per dedupTTL; zero disables suppression.
func NewNotifier(senders []Sender, events []string, dedupTTL time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
		ttl:     dedupTTL,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Notify sends title and message for event unless it is filtered out or a
// duplicate. Sender failures are joined; one failing sender does not stop
// the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.duplicate(event + "|" + title) {
		n.logger.DebugContext(ctx, "duplicate notification suppressed",
			slog.String("event", event),
			slog.String("title", title),
		)
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// duplicate records key and reports whether it was seen within the TTL.
// Expired keys are swept on the way.
func (n *Notifier) duplicate(key string) bool {
	if n.ttl <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	for k, ts := range n.seen {
		if now.Sub(ts) >= n.ttl {
			delete(n.seen, k)
		}
	}
	if _, ok := n.seen[key]; ok {
		return true
	}
	n.seen[key] = now
	return false
}
