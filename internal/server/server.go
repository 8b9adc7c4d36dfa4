// Package server exposes the HTTP surface: the signal webhook, the health
// snapshot and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dexrelay/internal/domain"
	"dexrelay/internal/metrics"
	"dexrelay/internal/processor"
)

// SignalProcessor runs one validated signal through the pipeline.
type SignalProcessor interface {
	Process(ctx context.Context, sig *domain.Signal) (*processor.Result, error)
}

// HealthView exposes the monitor's current snapshot.
type HealthView interface {
	Snapshot() domain.HealthSnapshot
}

// Server is the relay's HTTP front.
type Server struct {
	proc    SignalProcessor
	health  HealthView
	metrics *metrics.Metrics
	log     *slog.Logger

	httpServer *http.Server
}

// New builds the server on the given listen address.
func New(addr string, proc SignalProcessor, health HealthView, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{proc: proc, health: health, metrics: m, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{source}", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the listener in the background. Listen errors other than a clean
// close are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type attemptView struct {
	Venue     string `json:"venue"`
	Status    string `json:"status"`
	Filled    string `json:"filled"`
	Remaining string `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

type resultResponse struct {
	Fingerprint string        `json:"fingerprint"`
	Outcome     string        `json:"outcome"`
	Attempts    []attemptView `json:"attempts"`
}

// handleWebhook ingests one alert from a charting tool. Validation failures
// come back as 400 with the offending field named, so misconfigured alerts are
// debuggable from the webhook sender's log alone.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")

	var raw domain.RawSignal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("malformed payload: %v", err)})
		return
	}

	sig, err := domain.NewSignal(raw, source, time.Now())
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.metrics.ObserveSignal(source, metrics.OutcomeInvalid)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Reason, Field: verr.Field})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.proc.Process(r.Context(), sig)
	switch {
	case errors.Is(err, domain.ErrDuplicateSignal):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate signal"})
		return
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	case err != nil:
		s.log.Error("pipeline failure", "fingerprint", sig.Fingerprint, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	resp := resultResponse{
		Fingerprint: result.Fingerprint,
		Outcome:     string(result.Outcome),
		Attempts:    make([]attemptView, 0, len(result.Attempts)),
	}
	for _, attempt := range result.Attempts {
		resp.Attempts = append(resp.Attempts, attemptView{
			Venue:     attempt.Venue,
			Status:    string(attempt.Status),
			Filled:    attempt.Filled.String(),
			Remaining: attempt.Remaining.String(),
			Error:     attempt.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth serves the monitor snapshot. A fully offline fleet answers 503
// so load balancers and uptime checks see the outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, domain.HealthSnapshot{StatusText: domain.VenueHealthy.String()})
		return
	}

	snapshot := s.health.Snapshot()
	code := http.StatusOK
	if snapshot.Status == domain.VenueOffline {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, snapshot)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
