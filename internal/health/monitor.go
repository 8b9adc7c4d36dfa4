// Package health tracks per-venue connectivity and drives auto-reconnect.
//
// State transitions follow consecutive probe outcomes: a venue is HEALTHY
// after any success, DEGRADED after the first failure, OFFLINE once failures
// reach the configured threshold. Entering OFFLINE spawns one reconnect task
// for that venue; the probe loop skips venues with a reconnect in flight.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dexrelay/internal/alert"
	"dexrelay/internal/domain"
	"dexrelay/internal/infra"
	"dexrelay/internal/metrics"
)

// Config tunes the monitor loop.
type Config struct {
	ProbeInterval        time.Duration
	ProbeTimeout         time.Duration
	OfflineThreshold     int
	ReconnectMaxAttempts int
	ReconnectBackoff     infra.BackoffPolicy
}

// DefaultConfig matches the production defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:        30 * time.Second,
		ProbeTimeout:         5 * time.Second,
		OfflineThreshold:     3,
		ReconnectMaxAttempts: 10,
		ReconnectBackoff:     infra.DefaultBackoffPolicy(),
	}
}

type venueState struct {
	status       domain.VenueStatus
	failures     int
	lastSuccess  time.Time
	latency      time.Duration
	reconnecting bool
}

// Monitor polls every venue on a fixed interval and owns all health state.
// The poll loop is the single writer; Snapshot returns copies.
type Monitor struct {
	venues  []domain.VenueAdapter
	cfg     Config
	alerts  *alert.Notifier
	metrics *metrics.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	states map[string]*venueState

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewMonitor builds a monitor over the given venues. Every venue starts
// HEALTHY; the first poll corrects that within one interval.
func NewMonitor(venues []domain.VenueAdapter, cfg Config, alerts *alert.Notifier, m *metrics.Metrics, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.OfflineThreshold < 1 {
		cfg.OfflineThreshold = 3
	}
	states := make(map[string]*venueState, len(venues))
	for _, v := range venues {
		states[v.ID()] = &venueState{status: domain.VenueHealthy}
	}
	return &Monitor{
		venues:  venues,
		cfg:     cfg,
		alerts:  alerts,
		metrics: m,
		log:     log,
		states:  states,
	}
}

// Start launches the poll loop. Stop tears it down.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		m.pollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pollOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it and any reconnect tasks to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// pollOnce probes every venue in parallel. Venues with a reconnect task in
// flight are skipped; the task reports its own outcome.
func (m *Monitor) pollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, venue := range m.venues {
		m.mu.Lock()
		skip := m.states[venue.ID()].reconnecting
		m.mu.Unlock()
		if skip {
			continue
		}

		wg.Add(1)
		go func(venue domain.VenueAdapter) {
			defer wg.Done()
			m.probeVenue(ctx, venue)
		}(venue)
	}
	wg.Wait()
}

func (m *Monitor) probeVenue(ctx context.Context, venue domain.VenueAdapter) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	result, err := venue.Probe(pctx)
	healthy := err == nil && result != nil && result.Healthy
	var latency time.Duration
	if result != nil {
		latency = result.Latency
	}
	m.recordProbe(ctx, venue, healthy, latency)
}

// recordProbe applies one probe outcome to the venue's state machine.
func (m *Monitor) recordProbe(ctx context.Context, venue domain.VenueAdapter, healthy bool, latency time.Duration) {
	id := venue.ID()

	m.mu.Lock()
	state := m.states[id]
	oldStatus := state.status

	if healthy {
		state.failures = 0
		state.status = domain.VenueHealthy
		state.lastSuccess = time.Now()
		state.latency = latency
	} else {
		state.failures++
		if state.failures >= m.cfg.OfflineThreshold {
			state.status = domain.VenueOffline
		} else {
			state.status = domain.VenueDegraded
		}
	}
	newStatus := state.status

	startReconnect := newStatus == domain.VenueOffline && !state.reconnecting
	if startReconnect {
		state.reconnecting = true
	}
	m.mu.Unlock()

	if newStatus != oldStatus {
		m.log.Warn("venue status changed", "venue", id, "old", oldStatus, "new", newStatus)
		m.alerts.Publish(alert.StatusChanged(id, oldStatus.String(), newStatus.String()))
	}
	m.metrics.SetVenueStatus(id, int(newStatus))

	if startReconnect {
		m.metrics.ObserveReconnect(id)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.reconnect(ctx, venue)
		}()
	}
}

// reconnect tears the venue connection down and rebuilds it with backoff.
// Exactly one task runs per venue at a time; on give-up the venue stays
// OFFLINE and a later poll may start a new task.
func (m *Monitor) reconnect(ctx context.Context, venue domain.VenueAdapter) {
	id := venue.ID()
	defer func() {
		m.mu.Lock()
		m.states[id].reconnecting = false
		m.mu.Unlock()
	}()

	maxAttempts := m.cfg.ReconnectMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.ReconnectBackoff.JitteredDelay(attempt - 1)):
			}
		}

		if err := venue.Disconnect(); err != nil {
			m.log.Warn("disconnect before reconnect failed", "venue", id, "err", err)
		}
		if err := venue.Connect(ctx); err != nil {
			m.log.Warn("reconnect attempt failed", "venue", id, "attempt", attempt+1, "err", err)
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		result, err := venue.Probe(pctx)
		cancel()
		if err != nil || result == nil || !result.Healthy {
			m.log.Warn("post-reconnect probe failed", "venue", id, "attempt", attempt+1, "err", err)
			continue
		}

		m.markRecovered(id, result.Latency)
		m.log.Info("venue reconnected", "venue", id, "attempts", attempt+1)
		return
	}

	m.log.Error("reconnect gave up", "venue", id, "attempts", maxAttempts)
}

func (m *Monitor) markRecovered(id string, latency time.Duration) {
	m.mu.Lock()
	state := m.states[id]
	oldStatus := state.status
	state.status = domain.VenueHealthy
	state.failures = 0
	state.lastSuccess = time.Now()
	state.latency = latency
	m.mu.Unlock()

	if oldStatus != domain.VenueHealthy {
		m.alerts.Publish(alert.StatusChanged(id, oldStatus.String(), domain.VenueHealthy.String()))
	}
	m.metrics.SetVenueStatus(id, int(domain.VenueHealthy))
}

// Snapshot returns a copy of every venue's state plus the aggregate, in the
// configured venue order.
func (m *Monitor) Snapshot() domain.HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	venues := make([]domain.VenueHealth, 0, len(m.venues))
	for _, v := range m.venues {
		state := m.states[v.ID()]
		venues = append(venues, domain.VenueHealth{
			Venue:               v.ID(),
			Status:              state.status,
			StatusText:          state.status.String(),
			ConsecutiveFailures: state.failures,
			LastSuccess:         state.lastSuccess,
			Latency:             state.latency,
			Reconnecting:        state.reconnecting,
		})
	}

	status := domain.AggregateStatus(venues)
	return domain.HealthSnapshot{
		Status:     status,
		StatusText: status.String(),
		Venues:     venues,
	}
}
