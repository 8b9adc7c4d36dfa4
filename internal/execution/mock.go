package execution

import (
	"context"
	"sync"
	"time"

	"dexrelay/internal/domain"

	"github.com/shopspring/decimal"
)

// MockVenue is a scriptable adapter for tests. Each operation can be
// overridden; unset operations behave like an always-healthy venue that
// fills everything.
type MockVenue struct {
	Name string

	SubmitFn func(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)
	ProbeFn  func(ctx context.Context) (*domain.ProbeResult, error)

	mu          sync.Mutex
	connects    int
	disconnects int
	submits     int
	updates     chan domain.OrderUpdate
}

func NewMockVenue(name string) *MockVenue {
	return &MockVenue{
		Name:    name,
		updates: make(chan domain.OrderUpdate, 16),
	}
}

func (m *MockVenue) ID() string { return m.Name }

func (m *MockVenue) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	return nil
}

func (m *MockVenue) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	return nil
}

func (m *MockVenue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	m.submits++
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return &domain.OrderResult{
		OrderID:   "mock-order",
		Status:    "filled",
		Filled:    req.Size,
		Remaining: decimal.Zero,
	}, nil
}

func (m *MockVenue) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	return &domain.OrderResult{OrderID: orderID, Status: "filled"}, nil
}

func (m *MockVenue) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return &domain.Position{Symbol: symbol, Size: decimal.Zero}, nil
}

func (m *MockVenue) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (m *MockVenue) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	if m.ProbeFn != nil {
		return m.ProbeFn(ctx)
	}
	return &domain.ProbeResult{Healthy: true, Latency: time.Millisecond}, nil
}

func (m *MockVenue) OrderUpdates() <-chan domain.OrderUpdate { return m.updates }

// PushUpdate injects an asynchronous order update, as a venue would.
func (m *MockVenue) PushUpdate(update domain.OrderUpdate) {
	m.updates <- update
}

// Counters for assertions.

func (m *MockVenue) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *MockVenue) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *MockVenue) Submits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submits
}
