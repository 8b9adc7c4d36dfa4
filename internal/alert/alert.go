// Package alert delivers notification events to the external alert sink.
// Delivery is always fire-and-forget: a failed delivery is logged locally and
// swallowed, never surfaced to the caller.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Event types produced by the core.
const (
	TypeVenueStatusChanged = "venue_status_changed"
	TypePartialFill        = "partial_fill"
)

// Event is one notification for the external sink.
type Event struct {
	Type   string            `json:"type"`
	Ts     time.Time         `json:"ts"`
	Fields map[string]string `json:"fields"`
}

// StatusChanged builds a venue status transition event.
func StatusChanged(venue, oldStatus, newStatus string) Event {
	return Event{
		Type: TypeVenueStatusChanged,
		Ts:   time.Now(),
		Fields: map[string]string{
			"venue": venue,
			"old":   oldStatus,
			"new":   newStatus,
		},
	}
}

// PartialFill builds a partial fill event.
func PartialFill(symbol string, filled, remaining decimal.Decimal) Event {
	return Event{
		Type: TypePartialFill,
		Ts:   time.Now(),
		Fields: map[string]string{
			"symbol":    symbol,
			"filled":    filled.String(),
			"remaining": remaining.String(),
		},
	}
}

// Sink is the external notification boundary. Implementations may block; the
// Notifier keeps them off the critical path.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Notifier publishes events to a sink without ever blocking or failing the
// caller.
type Notifier struct {
	sink    Sink
	timeout time.Duration
}

// NewNotifier wraps a sink. A nil sink drops every event.
func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink, timeout: 5 * time.Second}
}

// Publish delivers the event in the background. Panics and errors from the
// sink are contained here.
func (n *Notifier) Publish(event Event) {
	if n == nil || n.sink == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("alert sink panicked", "type", event.Type, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.sink.Deliver(ctx, event); err != nil {
			slog.Warn("alert delivery failed", "type", event.Type, "err", err)
		}
	}()
}

// SlogSink writes events to the process log. Default sink when no webhook is
// configured.
type SlogSink struct{}

func (SlogSink) Deliver(ctx context.Context, event Event) error {
	attrs := make([]any, 0, len(event.Fields)*2+2)
	attrs = append(attrs, "type", event.Type)
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	slog.Info("alert", attrs...)
	return nil
}
