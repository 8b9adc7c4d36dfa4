package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dexrelay/internal/domain"
	"dexrelay/internal/execution"
	"dexrelay/internal/infra"

	"github.com/shopspring/decimal"
)

func fastRetry() infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts: 4,
		Backoff: infra.BackoffPolicy{
			BaseDelay: time.Millisecond,
			MaxDelay:  5 * time.Millisecond,
		},
	}
}

type stubDeduper struct{ duplicate bool }

func (d stubDeduper) IsDuplicate(ctx context.Context, fp string) bool { return d.duplicate }

type stubLimiter struct{ allow bool }

func (l stubLimiter) Allow(source string) bool { return l.allow }

type collectingRecorder struct {
	mu       sync.Mutex
	attempts []domain.ExecutionAttempt
}

func (r *collectingRecorder) Record(ctx context.Context, attempt domain.ExecutionAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func (r *collectingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

type stubHealth struct{ snapshot domain.HealthSnapshot }

func (h stubHealth) Snapshot() domain.HealthSnapshot { return h.snapshot }

func testSignal(t *testing.T) *domain.Signal {
	t.Helper()
	sig, err := domain.NewSignal(domain.RawSignal{
		Symbol: "ETH-PERP",
		Side:   "buy",
		Size:   "1.5",
	}, "tradingview", time.Now())
	if err != nil {
		t.Fatalf("building signal: %v", err)
	}
	return sig
}

func TestProcess_AllVenuesFilled(t *testing.T) {
	a := execution.NewMockVenue("VENUE-A")
	b := execution.NewMockVenue("VENUE-B")
	rec := &collectingRecorder{}

	p := New(Options{
		Venues:   []domain.VenueAdapter{a, b},
		Recorder: rec,
		Retry:    fastRetry(),
	})

	sig := testSignal(t)
	result, err := p.Process(context.Background(), sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeFilled {
		t.Errorf("outcome = %s, want FILLED", result.Outcome)
	}
	if !sig.Processed {
		t.Error("signal must be marked processed after the fan-out")
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(result.Attempts))
	}
	if rec.count() != 2 {
		t.Errorf("recorded attempts = %d, want 2", rec.count())
	}
	for _, attempt := range result.Attempts {
		if attempt.Status != domain.AttemptFilled {
			t.Errorf("venue %s status = %s", attempt.Venue, attempt.Status)
		}
	}
}

func TestProcess_OneVenueTimesOut(t *testing.T) {
	filled := execution.NewMockVenue("FAST")
	stuck := execution.NewMockVenue("STUCK")
	stuck.SubmitFn = func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
		<-ctx.Done()
		return nil, domain.NewTransientError("STUCK", "TIMEOUT", ctx.Err())
	}
	rec := &collectingRecorder{}

	p := New(Options{
		Venues:       []domain.VenueAdapter{filled, stuck},
		Recorder:     rec,
		Retry:        fastRetry(),
		VenueTimeout: 50 * time.Millisecond,
	})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomePartial {
		t.Errorf("outcome = %s, want PARTIAL", result.Outcome)
	}
	if rec.count() != 2 {
		t.Errorf("recorded attempts = %d, want one per venue", rec.count())
	}

	byVenue := map[string]domain.AttemptStatus{}
	for _, attempt := range result.Attempts {
		byVenue[attempt.Venue] = attempt.Status
	}
	if byVenue["FAST"] != domain.AttemptFilled {
		t.Errorf("fast venue status = %s", byVenue["FAST"])
	}
	if byVenue["STUCK"] != domain.AttemptFailed {
		t.Errorf("stuck venue status = %s", byVenue["STUCK"])
	}
}

func TestProcess_DuplicateRejectedBeforeFanOut(t *testing.T) {
	venue := execution.NewMockVenue("VENUE-A")
	rec := &collectingRecorder{}

	p := New(Options{
		Venues:   []domain.VenueAdapter{venue},
		Deduper:  stubDeduper{duplicate: true},
		Recorder: rec,
		Retry:    fastRetry(),
	})

	sig := testSignal(t)
	_, err := p.Process(context.Background(), sig)
	if !errors.Is(err, domain.ErrDuplicateSignal) {
		t.Fatalf("err = %v, want ErrDuplicateSignal", err)
	}
	if venue.Submits() != 0 {
		t.Error("duplicate must not reach any venue")
	}
	if rec.count() != 0 {
		t.Error("duplicate must not produce attempt records")
	}
	if sig.Processed {
		t.Error("rejected signal must not be marked processed")
	}
}

func TestProcess_RateLimitedRejectsImmediately(t *testing.T) {
	venue := execution.NewMockVenue("VENUE-A")

	p := New(Options{
		Venues:  []domain.VenueAdapter{venue},
		Limiter: stubLimiter{allow: false},
		Retry:   fastRetry(),
	})

	start := time.Now()
	_, err := p.Process(context.Background(), testSignal(t))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("rate limited signal must be rejected without queueing")
	}
	if venue.Submits() != 0 {
		t.Error("rate limited signal must not reach any venue")
	}
}

func TestProcess_TransientFailureRetriedPerVenue(t *testing.T) {
	venue := execution.NewMockVenue("FLAKY")
	calls := 0
	seenIDs := map[string]bool{}
	var mu sync.Mutex
	venue.SubmitFn = func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
		mu.Lock()
		calls++
		seenIDs[req.ClientOrderID] = true
		n := calls
		mu.Unlock()
		if n < 3 {
			return nil, domain.NewTransientError("FLAKY", "TIMEOUT", errors.New("deadline"))
		}
		return &domain.OrderResult{OrderID: "ok", Filled: req.Size, Remaining: decimal.Zero}, nil
	}

	p := New(Options{Venues: []domain.VenueAdapter{venue}, Retry: fastRetry()})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeFilled {
		t.Errorf("outcome = %s, want FILLED after retries", result.Outcome)
	}
	if calls != 3 {
		t.Errorf("submit calls = %d, want 3", calls)
	}
	if len(seenIDs) != 3 {
		t.Errorf("distinct client order ids = %d, want a fresh one per attempt", len(seenIDs))
	}
}

func TestProcess_BusinessRejectionNotRetried(t *testing.T) {
	venue := execution.NewMockVenue("STRICT")
	venue.SubmitFn = func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
		return nil, domain.NewBusinessError("STRICT", "UNKNOWN_SYMBOL", errors.New("no such market"))
	}

	p := New(Options{Venues: []domain.VenueAdapter{venue}, Retry: fastRetry()})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want FAILED", result.Outcome)
	}
	if venue.Submits() != 1 {
		t.Errorf("submit calls = %d, business rejection must not retry", venue.Submits())
	}
	if result.Attempts[0].Error == "" {
		t.Error("failed attempt must carry the venue error")
	}
}

func TestProcess_AdapterPanicContained(t *testing.T) {
	good := execution.NewMockVenue("GOOD")
	bad := execution.NewMockVenue("BAD")
	bad.SubmitFn = func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
		panic("adapter bug")
	}

	p := New(Options{Venues: []domain.VenueAdapter{good, bad}, Retry: fastRetry()})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomePartial {
		t.Errorf("outcome = %s, want PARTIAL", result.Outcome)
	}

	byVenue := map[string]domain.ExecutionAttempt{}
	for _, attempt := range result.Attempts {
		byVenue[attempt.Venue] = attempt
	}
	if byVenue["BAD"].Status != domain.AttemptFailed {
		t.Errorf("panicking venue status = %s, want FAILED", byVenue["BAD"].Status)
	}
	if byVenue["BAD"].Error == "" {
		t.Error("panic must be captured into the attempt error")
	}
	if byVenue["GOOD"].Status != domain.AttemptFilled {
		t.Errorf("healthy venue status = %s, panic must not affect it", byVenue["GOOD"].Status)
	}
}

func TestProcess_PartialFillAggregates(t *testing.T) {
	venue := execution.NewMockVenue("PARTIAL")
	venue.SubmitFn = func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
		half := req.Size.Div(decimal.NewFromInt(2))
		return &domain.OrderResult{OrderID: "p1", Filled: half, Remaining: half}, nil
	}

	p := New(Options{Venues: []domain.VenueAdapter{venue}, Retry: fastRetry()})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomePartial {
		t.Errorf("outcome = %s, want PARTIAL", result.Outcome)
	}
	if result.Attempts[0].Status != domain.AttemptPartial {
		t.Errorf("attempt status = %s, want PARTIAL", result.Attempts[0].Status)
	}
}

func TestProcess_OfflineVenueSkipped(t *testing.T) {
	up := execution.NewMockVenue("UP")
	down := execution.NewMockVenue("DOWN")

	health := stubHealth{snapshot: domain.HealthSnapshot{Venues: []domain.VenueHealth{
		{Venue: "UP", Status: domain.VenueHealthy},
		{Venue: "DOWN", Status: domain.VenueOffline},
	}}}

	p := New(Options{
		Venues: []domain.VenueAdapter{up, down},
		Health: health,
		Retry:  fastRetry(),
	})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Attempts) != 1 || result.Attempts[0].Venue != "UP" {
		t.Errorf("attempts = %+v, want only the healthy venue", result.Attempts)
	}
	if down.Submits() != 0 {
		t.Error("offline venue must not receive the order")
	}
}

func TestProcess_AllOfflineStillAttemptsEverything(t *testing.T) {
	a := execution.NewMockVenue("A")
	b := execution.NewMockVenue("B")

	health := stubHealth{snapshot: domain.HealthSnapshot{Venues: []domain.VenueHealth{
		{Venue: "A", Status: domain.VenueOffline},
		{Venue: "B", Status: domain.VenueOffline},
	}}}

	p := New(Options{
		Venues: []domain.VenueAdapter{a, b},
		Health: health,
		Retry:  fastRetry(),
	})

	result, err := p.Process(context.Background(), testSignal(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("attempts = %d; a fully offline view must not starve execution", len(result.Attempts))
	}
}
