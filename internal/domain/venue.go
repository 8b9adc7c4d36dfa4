package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the pipeline gates.
var (
	ErrDuplicateSignal = errors.New("duplicate signal")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// VenueError is a classified failure from a venue operation.
// Transient errors (timeouts, 5xx, connection resets) are retryable; business
// rejections (unknown symbol, insufficient funds) are not.
type VenueError struct {
	Venue     string
	Code      string
	Transient bool
	Err       error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Code, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// NewTransientError wraps a retryable connectivity/timeout failure.
func NewTransientError(venue, code string, err error) *VenueError {
	return &VenueError{Venue: venue, Code: code, Transient: true, Err: err}
}

// NewBusinessError wraps a permanent venue rejection. Never retried.
func NewBusinessError(venue, code string, err error) *VenueError {
	return &VenueError{Venue: venue, Code: code, Transient: false, Err: err}
}

// IsTransient reports whether err is a retryable venue failure.
// Unclassified errors are treated as non-retryable.
func IsTransient(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Transient
	}
	return false
}

// OrderRequest is the per-venue submission derived from a signal.
// ClientOrderID must be freshly generated on every retry attempt so venues do
// not reject the retry as a replay.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	Price         decimal.Decimal
	OrderType     OrderType
}

// OrderResult is the venue's view of a submitted order.
type OrderResult struct {
	OrderID   string
	Status    string
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Raw       string // raw venue response, kept for the audit record
}

// Position is the venue-reported exposure for one symbol.
type Position struct {
	Symbol     string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

// ProbeResult is the outcome of a lightweight health check call.
type ProbeResult struct {
	Healthy bool
	Latency time.Duration
}

// OrderUpdate is an asynchronous order-state-change event pushed by a venue.
type OrderUpdate struct {
	Venue     string
	OrderID   string
	Status    string
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Ts        time.Time
}

// VenueAdapter is the capability set every trading venue client implements.
// Each adapter exclusively owns its outbound connection; all open/close
// operations funnel through Connect/Disconnect.
type VenueAdapter interface {
	// ID returns the stable venue identifier used in records and health state.
	ID() string

	// Connect opens the request session and the push subscription.
	Connect(ctx context.Context) error

	// Disconnect tears down the session. Safe to call when not connected.
	Disconnect() error

	// SubmitOrder places an order. Errors are classified via VenueError.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// GetOrderStatus queries a previously submitted order.
	GetOrderStatus(ctx context.Context, orderID string) (*OrderResult, error)

	// GetPosition returns the current exposure for a symbol.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error

	// Probe issues a lightweight authenticated call with its own bounded
	// timeout, independent of any retry backoff.
	Probe(ctx context.Context) (*ProbeResult, error)

	// OrderUpdates returns the channel of asynchronous push events. The
	// channel is allocated at construction and stays open across
	// Disconnect/Connect cycles, so one watcher covers the adapter's
	// whole lifetime.
	OrderUpdates() <-chan OrderUpdate
}
