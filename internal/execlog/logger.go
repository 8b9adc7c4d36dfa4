package execlog

import (
	"context"
	"log/slog"
	"sync"

	"dexrelay/internal/alert"
	"dexrelay/internal/domain"
)

// Logger is the outcome recorder for the fan-out pipeline. Persistence
// failures are logged and swallowed; execution never blocks on the audit
// trail, and alerting never blocks persistence.
type Logger struct {
	store  *Store
	alerts *alert.Notifier
	log    *slog.Logger

	wg sync.WaitGroup
}

// NewLogger builds a recorder over the given store. The notifier may be nil.
func NewLogger(store *Store, alerts *alert.Notifier, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{store: store, alerts: alerts, log: log}
}

// Record persists one attempt and raises a partial fill alert when warranted.
func (l *Logger) Record(ctx context.Context, attempt domain.ExecutionAttempt) {
	if err := l.store.SaveAttempt(ctx, attempt); err != nil {
		l.log.Error("failed to persist attempt",
			"venue", attempt.Venue,
			"fingerprint", attempt.SignalFingerprint,
			"err", err)
	}

	if attempt.Status == domain.AttemptPartial {
		l.log.Warn("partial fill",
			"venue", attempt.Venue,
			"symbol", attempt.Symbol,
			"filled", attempt.Filled,
			"remaining", attempt.Remaining)
		l.alerts.Publish(alert.PartialFill(attempt.Symbol, attempt.Filled, attempt.Remaining))
	}
}

// WatchUpdates drains a venue's push channel into the order_updates table
// until the channel closes or ctx is cancelled. Runs in its own goroutine.
func (l *Logger) WatchUpdates(ctx context.Context, updates <-chan domain.OrderUpdate) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				l.recordUpdate(ctx, update)
			}
		}
	}()
}

func (l *Logger) recordUpdate(ctx context.Context, update domain.OrderUpdate) {
	if err := l.store.SaveOrderUpdate(ctx, update); err != nil {
		l.log.Error("failed to persist order update",
			"venue", update.Venue,
			"order_id", update.OrderID,
			"err", err)
		return
	}
	l.log.Info("order update",
		"venue", update.Venue,
		"order_id", update.OrderID,
		"status", update.Status,
		"filled", update.Filled)
}

// Wait blocks until every watch goroutine has drained. Call after cancelling
// the watch contexts during shutdown.
func (l *Logger) Wait() {
	l.wg.Wait()
}
