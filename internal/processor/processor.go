// Package processor runs the signal pipeline: dedup gate, rate limit gate,
// then parallel fan-out to every active venue.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dexrelay/internal/domain"
	"dexrelay/internal/infra"
	"dexrelay/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is the aggregate result of one fan-out round across all venues.
type Outcome string

const (
	OutcomeFilled  Outcome = "FILLED"  // every venue filled completely
	OutcomePartial Outcome = "PARTIAL" // at least one fill, not all complete
	OutcomeFailed  Outcome = "FAILED"  // no venue got any fill
)

// Result carries the round outcome and the per-venue attempt records.
type Result struct {
	Fingerprint string
	Outcome     Outcome
	Attempts    []domain.ExecutionAttempt
}

// Deduper answers whether a fingerprint has been seen within the window.
type Deduper interface {
	IsDuplicate(ctx context.Context, fingerprint string) bool
}

// Limiter gates signal throughput per source.
type Limiter interface {
	Allow(source string) bool
}

// Recorder persists attempt records. Called once per (signal, venue) round.
type Recorder interface {
	Record(ctx context.Context, attempt domain.ExecutionAttempt)
}

// HealthView exposes the monitor's current per-venue states.
type HealthView interface {
	Snapshot() domain.HealthSnapshot
}

// Processor fans a validated signal out to the configured venues.
type Processor struct {
	venues   []domain.VenueAdapter
	deduper  Deduper
	limiter  Limiter
	recorder Recorder
	health   HealthView
	metrics  *metrics.Metrics
	log      *slog.Logger

	retryCfg     infra.RetryConfig
	venueTimeout time.Duration
}

// Options are the collaborators and tunables for a Processor. Venues is
// required; everything else has a safe zero-value behavior (nil gates pass,
// nil recorder drops, nil health attempts every venue).
type Options struct {
	Venues       []domain.VenueAdapter
	Deduper      Deduper
	Limiter      Limiter
	Recorder     Recorder
	Health       HealthView
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Retry        infra.RetryConfig
	VenueTimeout time.Duration
}

// New builds a Processor.
func New(opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = infra.DefaultRetryConfig()
	}
	if opts.VenueTimeout == 0 {
		opts.VenueTimeout = 20 * time.Second
	}
	return &Processor{
		venues:       opts.Venues,
		deduper:      opts.Deduper,
		limiter:      opts.Limiter,
		recorder:     opts.Recorder,
		health:       opts.Health,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		retryCfg:     opts.Retry,
		venueTimeout: opts.VenueTimeout,
	}
}

// Process runs one signal through the gates and the fan-out. Gate rejections
// return the matching sentinel error and produce no attempt records.
func (p *Processor) Process(ctx context.Context, sig *domain.Signal) (*Result, error) {
	if p.deduper != nil && p.deduper.IsDuplicate(ctx, sig.Fingerprint) {
		p.metrics.ObserveSignal(sig.Source, metrics.OutcomeDuplicate)
		p.log.Info("signal dropped", "reason", "duplicate", "fingerprint", sig.Fingerprint)
		return nil, domain.ErrDuplicateSignal
	}

	if p.limiter != nil && !p.limiter.Allow(sig.Source) {
		p.metrics.ObserveSignal(sig.Source, metrics.OutcomeRateLimited)
		p.log.Warn("signal dropped", "reason", "rate limited", "source", sig.Source)
		return nil, domain.ErrRateLimited
	}

	p.metrics.ObserveSignal(sig.Source, metrics.OutcomeAccepted)

	targets := p.activeVenues()
	p.log.Info("fanning out signal",
		"fingerprint", sig.Fingerprint,
		"symbol", sig.Symbol,
		"side", sig.Side,
		"venues", len(targets))

	attempts := make([]domain.ExecutionAttempt, len(targets))
	var wg sync.WaitGroup
	for i, venue := range targets {
		wg.Add(1)
		go func(i int, venue domain.VenueAdapter) {
			defer wg.Done()
			attempts[i] = p.submitToVenue(ctx, sig, venue)
		}(i, venue)
	}
	wg.Wait()

	for _, attempt := range attempts {
		if p.recorder != nil {
			p.recorder.Record(ctx, attempt)
		}
		p.metrics.ObserveAttempt(attempt.Venue, string(attempt.Status), attempt.Latency.Seconds())
	}

	sig.Processed = true
	result := &Result{
		Fingerprint: sig.Fingerprint,
		Outcome:     aggregate(attempts),
		Attempts:    attempts,
	}
	p.log.Info("fan-out complete",
		"fingerprint", sig.Fingerprint,
		"outcome", result.Outcome,
		"attempts", len(attempts))
	return result, nil
}

// activeVenues returns the venues worth attempting. Offline venues are skipped
// when at least one venue is reachable; when the monitor reports everything
// offline (or no monitor is wired), every configured venue is attempted so a
// stale health view cannot starve execution.
func (p *Processor) activeVenues() []domain.VenueAdapter {
	if p.health == nil {
		return p.venues
	}

	snapshot := p.health.Snapshot()
	offline := make(map[string]bool, len(snapshot.Venues))
	for _, v := range snapshot.Venues {
		if v.Status == domain.VenueOffline {
			offline[v.Venue] = true
		}
	}

	active := make([]domain.VenueAdapter, 0, len(p.venues))
	for _, venue := range p.venues {
		if !offline[venue.ID()] {
			active = append(active, venue)
		}
	}
	if len(active) == 0 {
		return p.venues
	}
	return active
}

// submitToVenue runs one venue submission with retry under a bounded timeout.
// A panic from an adapter is contained here and recorded as a failed attempt;
// it never takes down the round.
func (p *Processor) submitToVenue(ctx context.Context, sig *domain.Signal, venue domain.VenueAdapter) (attempt domain.ExecutionAttempt) {
	start := time.Now()
	attempt = domain.ExecutionAttempt{
		ID:                uuid.NewString(),
		SignalFingerprint: sig.Fingerprint,
		Venue:             venue.ID(),
		Symbol:            sig.Symbol,
		Filled:            decimal.Zero,
		Remaining:         sig.Size,
		CreatedAt:         start,
	}

	defer func() {
		if r := recover(); r != nil {
			attempt.Status = domain.AttemptFailed
			attempt.Error = fmt.Sprintf("venue adapter panic: %v", r)
			attempt.Latency = time.Since(start)
			p.log.Error("venue adapter panicked", "venue", venue.ID(), "panic", r)
		}
	}()

	vctx, cancel := context.WithTimeout(ctx, p.venueTimeout)
	defer cancel()

	result, err := infra.Retry(vctx, p.retryCfg, domain.IsTransient,
		func(ctx context.Context) (*domain.OrderResult, error) {
			// A fresh client order id per attempt keeps venues from
			// rejecting a retry as a replayed order.
			req := domain.OrderRequest{
				ClientOrderID: uuid.NewString(),
				Symbol:        sig.Symbol,
				Side:          sig.Side,
				Size:          sig.Size,
				Price:         sig.Price,
				OrderType:     sig.OrderType,
			}
			return venue.SubmitOrder(ctx, req)
		})

	attempt.Latency = time.Since(start)
	if err != nil {
		attempt.Status = domain.AttemptFailed
		attempt.Error = err.Error()
		p.log.Warn("venue submission failed",
			"venue", venue.ID(),
			"fingerprint", sig.Fingerprint,
			"err", err)
		return attempt
	}

	attempt.Status = domain.ClassifyFill(result.Filled, result.Remaining, false)
	attempt.Filled = result.Filled
	attempt.Remaining = result.Remaining
	attempt.Raw = result.Raw
	p.log.Info("venue submission done",
		"venue", venue.ID(),
		"order_id", result.OrderID,
		"status", attempt.Status,
		"latency_ms", attempt.Latency.Milliseconds())
	return attempt
}

// aggregate folds per-venue attempt statuses into the round outcome.
func aggregate(attempts []domain.ExecutionAttempt) Outcome {
	if len(attempts) == 0 {
		return OutcomeFailed
	}
	filled, anyFill := 0, false
	for _, a := range attempts {
		switch a.Status {
		case domain.AttemptFilled:
			filled++
			anyFill = true
		case domain.AttemptPartial:
			anyFill = true
		}
	}
	switch {
	case filled == len(attempts):
		return OutcomeFilled
	case anyFill:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}
