package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dexrelay/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperVenue simulates a trading venue with instant fills against a virtual
// balance. Used for pre-production validation of the full fan-out path.
type PaperVenue struct {
	id string

	mu        sync.Mutex
	connected bool
	balance   decimal.Decimal
	positions map[string]decimal.Decimal
	orders    map[string]*domain.OrderResult
	updates   chan domain.OrderUpdate
}

// NewPaperVenue creates a simulated venue with a default virtual balance.
func NewPaperVenue(id string) *PaperVenue {
	return &PaperVenue{
		id:        id,
		balance:   decimal.NewFromInt(1_000_000),
		positions: make(map[string]decimal.Decimal),
		orders:    make(map[string]*domain.OrderResult),
		updates:   make(chan domain.OrderUpdate, 64),
	}
}

func (p *PaperVenue) ID() string { return p.id }

func (p *PaperVenue) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	p.connected = true
	return nil
}

// Disconnect flips the connected flag. The update channel stays open so
// watchers survive reconnect cycles.
func (p *PaperVenue) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// SubmitOrder fills market orders immediately. Oversized orders are rejected
// the way a real venue would: a business error, never retried.
func (p *PaperVenue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, domain.NewTransientError(p.id, "DISCONNECTED", fmt.Errorf("venue not connected"))
	}
	if req.Size.GreaterThan(p.balance) {
		return nil, domain.NewBusinessError(p.id, "INSUFFICIENT_FUNDS",
			fmt.Errorf("size %s exceeds virtual balance %s", req.Size, p.balance))
	}

	pos := p.positions[req.Symbol]
	if req.Side == domain.SideBuy {
		p.positions[req.Symbol] = pos.Add(req.Size)
	} else {
		p.positions[req.Symbol] = pos.Sub(req.Size)
	}

	result := &domain.OrderResult{
		OrderID:   uuid.NewString(),
		Status:    "filled",
		Filled:    req.Size,
		Remaining: decimal.Zero,
		Raw:       fmt.Sprintf(`{"paper":true,"venue":%q}`, p.id),
	}
	p.orders[result.OrderID] = result

	// Mirror the asynchronous fill confirmation a live venue would push.
	select {
	case p.updates <- domain.OrderUpdate{
		Venue:     p.id,
		OrderID:   result.OrderID,
		Status:    "filled",
		Filled:    req.Size,
		Remaining: decimal.Zero,
		Ts:        time.Now(),
	}:
	default:
	}

	return result, nil
}

func (p *PaperVenue) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.orders[orderID]
	if !ok {
		return nil, domain.NewBusinessError(p.id, "ORDER_NOT_FOUND", fmt.Errorf("order %s not found", orderID))
	}
	return result, nil
}

func (p *PaperVenue) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.Position{Symbol: symbol, Size: p.positions[symbol]}, nil
}

func (p *PaperVenue) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orders[orderID]; !ok {
		return domain.NewBusinessError(p.id, "ORDER_NOT_FOUND", fmt.Errorf("order %s not found", orderID))
	}
	// Paper fills are instant, so there is never anything left to cancel.
	return nil
}

func (p *PaperVenue) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return &domain.ProbeResult{Healthy: false}, domain.NewTransientError(p.id, "DISCONNECTED", fmt.Errorf("venue not connected"))
	}
	return &domain.ProbeResult{Healthy: true, Latency: time.Microsecond}, nil
}

func (p *PaperVenue) OrderUpdates() <-chan domain.OrderUpdate {
	return p.updates
}
