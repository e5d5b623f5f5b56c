// Package notify delivers side-channel events: operator alerts over Telegram
// and Discord, XP attribution to Photon, and live updates on the signal bus.
// Delivery is best effort; callers log failures and carry on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// Sender is a chat channel that renders a title and a message body.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// EventSink consumes structured action and market events.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
	Name() string
}

// Notifier fans alerts out to chat senders. Only event types in the allow
// list are forwarded by Notify and Publish; NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
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

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Name implements EventSink.
func (n *Notifier) Name() string {
	return "notifier"
}

// Publish renders ev and forwards it when its type is allowed.
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	title, message := FormatEvent(ev)
	return n.Notify(ctx, string(ev.Type), title, message)
}

// Notify sends to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatEvent renders ev as a chat title and body.
func FormatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventCommit:
		title = fmt.Sprintf("Prediction committed on market #%d", ev.MarketID)
	case domain.EventReveal:
		title = fmt.Sprintf("Prediction revealed on market #%d", ev.MarketID)
	case domain.EventWin:
		title = fmt.Sprintf("Winning claim on market #%d", ev.MarketID)
	case domain.EventPhaseChange:
		title = fmt.Sprintf("Market #%d changed phase", ev.MarketID)
	case domain.EventResolved:
		title = fmt.Sprintf("Market #%d resolved", ev.MarketID)
	default:
		title = fmt.Sprintf("%s on market #%d", ev.Type, ev.MarketID)
	}

	var b strings.Builder
	if ev.Address != "" {
		fmt.Fprintf(&b, "address: %s\n", shortAddress(ev.Address))
	}
	for _, k := range sortedKeys(ev.Metadata) {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Metadata[k])
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func shortAddress(a string) string {
	if len(a) <= 14 {
		return a
	}
	return a[:8] + "…" + a[len(a)-6:]
}
