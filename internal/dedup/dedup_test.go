package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_CheckAndMark(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	seen, err := store.CheckAndMark(ctx, "fp-1")
	if err != nil || seen {
		t.Errorf("first sight: seen=%v err=%v", seen, err)
	}

	seen, _ = store.CheckAndMark(ctx, "fp-1")
	if !seen {
		t.Error("second sight not detected")
	}

	seen, _ = store.CheckAndMark(ctx, "fp-2")
	if seen {
		t.Error("distinct fingerprint flagged as duplicate")
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.nowFunc = func() time.Time { return now }

	store.CheckAndMark(context.Background(), "fp-1")

	// Advance past the TTL; the entry no longer counts as seen.
	now = now.Add(2 * time.Minute)
	seen, _ := store.CheckAndMark(context.Background(), "fp-1")
	if seen {
		t.Error("expired fingerprint still flagged as duplicate")
	}
}

func TestMemoryStore_ConcurrentMark(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	duplicates := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, _ := store.CheckAndMark(ctx, "contested")
			duplicates <- seen
		}()
	}
	wg.Wait()
	close(duplicates)

	firsts := 0
	for seen := range duplicates {
		if !seen {
			firsts++
		}
	}
	if firsts != 1 {
		t.Errorf("exactly one caller should win the mark, got %d", firsts)
	}
}

type failingStore struct{}

func (failingStore) CheckAndMark(ctx context.Context, fp string) (bool, error) {
	return false, errors.New("store down")
}

func TestDeduplicator_FailsOpen(t *testing.T) {
	d := New(failingStore{})
	if d.IsDuplicate(context.Background(), "fp-1") {
		t.Error("store failure must degrade to not-duplicate")
	}
}

func TestDeduplicator_DetectsDuplicate(t *testing.T) {
	d := New(NewMemoryStore(time.Minute))
	ctx := context.Background()

	if d.IsDuplicate(ctx, "fp-1") {
		t.Error("fresh fingerprint flagged")
	}
	if !d.IsDuplicate(ctx, "fp-1") {
		t.Error("re-delivery not flagged")
	}
}
