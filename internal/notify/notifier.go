// Package notify tells operators about resolution outcomes. Notifications are
// dispatched to every registered sender (Telegram, Discord) and can be
// filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gitadpal/voran/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only events in
// the allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
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
	}
}

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Resolution formats a resolution event and sends it through Notify.
func (n *Notifier) Resolution(ctx context.Context, ev domain.ResolutionEvent) error {
	title, message := FormatEvent(ev)
	return n.Notify(ctx, ev.Event, title, message)
}

// FormatEvent renders a resolution event as a title and a plain-text body.
func FormatEvent(ev domain.ResolutionEvent) (title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "market: %s\n", ev.MarketID)
	switch {
	case ev.Payload != nil:
		title = "Resolution signed"
		fmt.Fprintf(&b, "value: %s\nresult: %t\nexecutedAt: %d\nspecHash: %s",
			ev.Payload.ParsedValue, ev.Payload.Result, ev.Payload.ExecutedAt, ev.Payload.SpecHash)
	default:
		title = "Resolution failed"
		fmt.Fprintf(&b, "stage: %s\nerror: %s", ev.Stage, ev.Error)
	}
	return title, b.String()
}

// dispatch sends to every sender; one failing sender does not stop delivery
// to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
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
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), err)
	}
	return nil
}
