package execlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dexrelay/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "execlog.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndListAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	first := domain.ExecutionAttempt{
		ID:                "attempt-1",
		SignalFingerprint: "fp-1",
		Venue:             "HYPERLIQUID",
		Symbol:            "ETH-PERP",
		Status:            domain.AttemptFilled,
		Filled:            decimal.NewFromFloat(1.5),
		Remaining:         decimal.Zero,
		Raw:               `{"oid":"o-1"}`,
		Latency:           250 * time.Millisecond,
		CreatedAt:         base,
	}
	second := domain.ExecutionAttempt{
		ID:                "attempt-2",
		SignalFingerprint: "fp-1",
		Venue:             "DYDX",
		Symbol:            "ETH-PERP",
		Status:            domain.AttemptFailed,
		Filled:            decimal.Zero,
		Remaining:         decimal.NewFromFloat(1.5),
		Error:             "venue DYDX: TIMEOUT: deadline exceeded",
		Latency:           20 * time.Second,
		CreatedAt:         base.Add(time.Second),
	}

	if err := store.SaveAttempt(ctx, first); err != nil {
		t.Fatalf("Failed to save first attempt: %v", err)
	}
	if err := store.SaveAttempt(ctx, second); err != nil {
		t.Fatalf("Failed to save second attempt: %v", err)
	}

	attempts, err := store.ListAttempts(ctx, "fp-1")
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}

	got := attempts[0]
	if got.Venue != "HYPERLIQUID" || got.Status != domain.AttemptFilled {
		t.Errorf("first attempt mismatch: %+v", got)
	}
	if !got.Filled.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("filled mismatch: got %s", got.Filled)
	}
	if attempts[1].Error == "" {
		t.Error("failed attempt must keep its error text")
	}

	// A different fingerprint sees nothing.
	other, err := store.ListAttempts(ctx, "fp-2")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no attempts for fp-2, got %d", len(other))
	}
}

func TestStore_DuplicateAttemptIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	attempt := domain.ExecutionAttempt{
		ID:                "attempt-1",
		SignalFingerprint: "fp-1",
		Venue:             "HYPERLIQUID",
		Symbol:            "ETH-PERP",
		Status:            domain.AttemptFilled,
		Filled:            decimal.NewFromInt(1),
		Remaining:         decimal.Zero,
		CreatedAt:         time.Now(),
	}
	if err := store.SaveAttempt(ctx, attempt); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := store.SaveAttempt(ctx, attempt); err == nil {
		t.Error("re-inserting the same attempt id must fail, records are append-only")
	}
}

func TestStore_OrderUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	early := domain.OrderUpdate{
		Venue:     "HYPERLIQUID",
		OrderID:   "o-1",
		Status:    "partially_filled",
		Filled:    decimal.NewFromFloat(0.5),
		Remaining: decimal.NewFromFloat(1.0),
		Ts:        base,
	}
	late := domain.OrderUpdate{
		Venue:     "HYPERLIQUID",
		OrderID:   "o-1",
		Status:    "filled",
		Filled:    decimal.NewFromFloat(1.5),
		Remaining: decimal.Zero,
		Ts:        base.Add(time.Second),
	}

	if err := store.SaveOrderUpdate(ctx, early); err != nil {
		t.Fatalf("Failed to save update: %v", err)
	}
	if err := store.SaveOrderUpdate(ctx, late); err != nil {
		t.Fatalf("Failed to save update: %v", err)
	}

	latest, err := store.LatestOrderUpdate(ctx, "HYPERLIQUID", "o-1")
	if err != nil {
		t.Fatalf("Failed to query latest: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected an update")
	}
	if latest.Status != "filled" || !latest.Remaining.IsZero() {
		t.Errorf("latest update mismatch: %+v", latest)
	}

	missing, err := store.LatestOrderUpdate(ctx, "HYPERLIQUID", "o-unknown")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown order, got %+v", missing)
	}
}
