package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"dexrelay/internal/domain"
	"dexrelay/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const venueID = "HYPERLIQUID"

// Adapter implements domain.VenueAdapter for Hyperliquid.
// It exclusively owns the REST session and the push subscription; all
// open/close operations funnel through Connect/Disconnect.
type Adapter struct {
	cfg    infra.VenueConfig
	signer *Signer
	http   *http.Client

	connectMu sync.Mutex
	connected bool
	push      *infra.PushWorker
	updates   chan domain.OrderUpdate
}

// NewAdapter creates a disconnected Hyperliquid adapter.
func NewAdapter(cfg infra.VenueConfig) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		signer: NewSigner(cfg.AccessKey, cfg.SecretKey),
		http:   &http.Client{Timeout: 10 * time.Second},
		// Allocated once for the adapter's lifetime so a watcher wired at
		// startup survives reconnect cycles.
		updates: make(chan domain.OrderUpdate, 64),
	}
	a.push = infra.NewPushWorker(a)
	return a
}

func (a *Adapter) ID() string { return venueID }

// Connect verifies REST reachability and starts the push subscription.
// Single-flighted: concurrent callers (processor startup, health reconnect)
// cannot race a second session into existence.
func (a *Adapter) Connect(ctx context.Context) error {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	if a.connected {
		return nil
	}

	if _, err := a.Probe(ctx); err != nil {
		return domain.NewTransientError(venueID, "CONNECT", err)
	}

	a.push.Start(ctx)
	a.connected = true

	slog.Info("venue connected", "venue", venueID)
	return nil
}

// Disconnect stops the push subscription. The update channel stays open; the
// next Connect resumes delivery on it. Safe to call when not connected.
func (a *Adapter) Disconnect() error {
	a.connectMu.Lock()
	defer a.connectMu.Unlock()

	if !a.connected {
		return nil
	}

	a.push.Stop()
	a.connected = false

	slog.Info("venue disconnected", "venue", venueID)
	return nil
}

// SubmitOrder places an order. The caller supplies a fresh ClientOrderID per
// attempt so venue-side replay protection does not reject retries.
func (a *Adapter) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	side := "B"
	if req.Side == domain.SideSell {
		side = "A"
	}

	body := submitOrderRequest{
		ClientOrderID: req.ClientOrderID,
		Coin:          req.Symbol,
		Side:          side,
		Size:          req.Size.String(),
		Type:          strings.ToLower(string(req.OrderType)),
	}
	if req.OrderType == domain.OrderTypeLimit {
		body.Price = req.Price.String()
	}

	var resp apiResponse
	raw, err := a.doRequest(ctx, http.MethodPost, "/v1/orders", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, a.classifyRejection(resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return nil, domain.NewTransientError(venueID, "SUBMIT", fmt.Errorf("empty order data"))
	}

	return orderResult(resp.Data, raw)
}

// GetOrderStatus queries a previously submitted order.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	var resp apiResponse
	raw, err := a.doRequest(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, a.classifyRejection(resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return nil, domain.NewBusinessError(venueID, "ORDER_NOT_FOUND", fmt.Errorf("order %s not found", orderID))
	}
	return orderResult(resp.Data, raw)
}

// GetPosition returns the current exposure for a symbol.
func (a *Adapter) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var resp positionResponse
	if _, err := a.doRequest(ctx, http.MethodGet, "/v1/positions", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, a.classifyRejection(resp.Code, resp.Msg)
	}

	for _, p := range resp.Data {
		if p.Coin != symbol {
			continue
		}
		size, err := decimal.NewFromString(p.Size)
		if err != nil {
			return nil, domain.NewTransientError(venueID, "POSITION", fmt.Errorf("bad size %q: %w", p.Size, err))
		}
		entry, _ := decimal.NewFromString(p.EntryPrice)
		return &domain.Position{Symbol: symbol, Size: size, EntryPrice: entry}, nil
	}

	// No position is a valid zero exposure, not an error.
	return &domain.Position{Symbol: symbol, Size: decimal.Zero, EntryPrice: decimal.Zero}, nil
}

// CancelOrder cancels an open order.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	var resp apiResponse
	if _, err := a.doRequest(ctx, http.MethodDelete, "/v1/orders/"+orderID, nil, &resp); err != nil {
		return err
	}
	if resp.Code != "0" {
		return a.classifyRejection(resp.Code, resp.Msg)
	}
	return nil
}

// Probe issues a lightweight authenticated call with its own bounded timeout,
// independent of any retry backoff.
func (a *Adapter) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	var resp apiResponse
	if _, err := a.doRequest(probeCtx, http.MethodGet, "/v1/time", nil, &resp); err != nil {
		return &domain.ProbeResult{Healthy: false, Latency: time.Since(start)}, err
	}

	return &domain.ProbeResult{Healthy: true, Latency: time.Since(start)}, nil
}

// OrderUpdates returns the asynchronous push channel. Stable across
// reconnect cycles; never closed.
func (a *Adapter) OrderUpdates() <-chan domain.OrderUpdate {
	return a.updates
}

// doRequest performs one signed REST call and decodes the envelope into out.
// Network failures and 5xx map to transient errors; the raw body is returned
// for the audit record.
func (a *Adapter) doRequest(ctx context.Context, method, path string, body, out any) (string, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.RestURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range a.signer.GenerateHeaders(method, path, string(payload)) {
		req.Header.Set(k, v)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return "", domain.NewTransientError(venueID, "NETWORK", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewTransientError(venueID, "READ", err)
	}

	if resp.StatusCode >= 500 {
		return string(raw), domain.NewTransientError(venueID, "SERVER",
			fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return string(raw), domain.NewTransientError(venueID, "THROTTLED",
			fmt.Errorf("status 429"))
	}
	if resp.StatusCode >= 400 {
		return string(raw), domain.NewBusinessError(venueID, "REJECTED",
			fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return string(raw), domain.NewTransientError(venueID, "DECODE", err)
	}
	return string(raw), nil
}

// classifyRejection maps venue error codes onto the retry taxonomy.
func (a *Adapter) classifyRejection(code, msg string) error {
	switch code {
	case codeUnknownSymbol, codeInsufficientFunds, codeOrderNotFound:
		return domain.NewBusinessError(venueID, code, fmt.Errorf("%s", msg))
	default:
		return domain.NewTransientError(venueID, code, fmt.Errorf("%s", msg))
	}
}

func orderResult(data *orderData, raw string) (*domain.OrderResult, error) {
	filled, err := decimal.NewFromString(emptyZero(data.FilledSz))
	if err != nil {
		return nil, domain.NewTransientError(venueID, "DECODE", fmt.Errorf("bad filledSz %q", data.FilledSz))
	}
	remaining, err := decimal.NewFromString(emptyZero(data.RemainSz))
	if err != nil {
		return nil, domain.NewTransientError(venueID, "DECODE", fmt.Errorf("bad remainSz %q", data.RemainSz))
	}

	return &domain.OrderResult{
		OrderID:   data.OrderID,
		Status:    data.Status,
		Filled:    filled,
		Remaining: remaining,
		Raw:       raw,
	}, nil
}

func emptyZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// PushHandler implementation below: the worker owns the websocket lifecycle,
// the adapter translates venue frames into domain.OrderUpdate events.

func (a *Adapter) GetURL() string { return a.cfg.WSURL }

func (a *Adapter) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	var req wsSubscribeRequest
	req.Method = "subscribe"
	req.Subscription.Type = "orderUpdates"
	req.Subscription.User = a.cfg.AccessKey

	b, _ := json.Marshal(req)
	return a.push.Write(websocket.TextMessage, b)
}

func (a *Adapter) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var update wsOrderUpdate
	if err := json.Unmarshal(msg, &update); err != nil {
		return
	}
	if update.Channel != "orderUpdates" {
		return
	}

	filled, _ := decimal.NewFromString(emptyZero(update.Data.FilledSz))
	remaining, _ := decimal.NewFromString(emptyZero(update.Data.RemainSz))

	ev := domain.OrderUpdate{
		Venue:     venueID,
		OrderID:   update.Data.OrderID,
		Status:    update.Data.Status,
		Filled:    filled,
		Remaining: remaining,
		Ts:        time.UnixMilli(update.Data.Ts),
	}

	select {
	case a.updates <- ev:
	default:
		// Slow consumer: drop rather than stall the read loop.
	}
}

func (a *Adapter) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return a.push.Write(websocket.TextMessage, []byte("ping"))
}
