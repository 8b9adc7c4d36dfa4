// Package dedup rejects re-delivery of already-seen signals by fingerprint.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store records fingerprints with atomic check-and-mark semantics.
type Store interface {
	// CheckAndMark records the fingerprint and reports whether it had
	// already been seen. The check and the mark are one atomic step.
	CheckAndMark(ctx context.Context, fingerprint string) (bool, error)
}

// Deduplicator gates signals on their fingerprint. A store failure degrades
// to "not duplicate" (fail-open): blocking on dedup failure is worse than an
// occasional double-send caught by venue-side idempotency.
type Deduplicator struct {
	store Store
}

// New creates a deduplicator over the given store.
func New(store Store) *Deduplicator {
	return &Deduplicator{store: store}
}

// IsDuplicate reports whether this fingerprint was already processed, and
// marks it as seen otherwise. Safe under concurrent calls.
func (d *Deduplicator) IsDuplicate(ctx context.Context, fingerprint string) bool {
	seen, err := d.store.CheckAndMark(ctx, fingerprint)
	if err != nil {
		slog.Warn("dedup store failed, failing open", "err", err)
		return false
	}
	return seen
}

// MemoryStore is the in-process fingerprint store. Entries expire after the
// TTL; expired entries are swept lazily on insert.
type MemoryStore struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	ops     int
	nowFunc func() time.Time
}

// sweepEvery bounds how often the lazy sweep walks the map.
const sweepEvery = 256

// NewMemoryStore creates an in-memory store with the given entry TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// CheckAndMark implements Store. Never returns an error.
func (s *MemoryStore) CheckAndMark(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()

	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweep(now)
	}

	if at, ok := s.seen[fingerprint]; ok && now.Sub(at) < s.ttl {
		return true, nil
	}
	s.seen[fingerprint] = now
	return false, nil
}

// sweep removes expired entries. Must be called with the mutex held.
func (s *MemoryStore) sweep(now time.Time) {
	for fp, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, fp)
		}
	}
}
