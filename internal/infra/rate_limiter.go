package infra

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent signal ingress.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxBurst: maximum burst size
// perSecond: refill rate (tokens per second)
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxBurst),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// TryAcquire attempts to take a token without blocking.
// Returns false when the bucket is empty; callers reject immediately, they
// never queue.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// SourceLimiter applies an independent token bucket per signal source.
type SourceLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*RateLimiter
	maxBurst  int
	perSecond float64
}

// NewSourceLimiter creates a keyed limiter; every unseen source gets its own
// bucket with the given burst and refill rate.
func NewSourceLimiter(maxBurst int, perSecond float64) *SourceLimiter {
	return &SourceLimiter{
		buckets:   make(map[string]*RateLimiter),
		maxBurst:  maxBurst,
		perSecond: perSecond,
	}
}

// Allow reports whether a signal from the given source may proceed.
func (l *SourceLimiter) Allow(source string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[source]
	if !ok {
		bucket = NewRateLimiter(l.maxBurst, l.perSecond)
		l.buckets[source] = bucket
	}
	l.mu.Unlock()

	return bucket.TryAcquire()
}
