package dydx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dexrelay/internal/domain"
	"dexrelay/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const venueID = "DYDX"

// Adapter implements domain.VenueAdapter for the dYdX indexer API.
type Adapter struct {
	cfg  infra.VenueConfig
	http *http.Client

	connectMu sync.Mutex
	connected bool
	push      *infra.PushWorker
	updates   chan domain.OrderUpdate
}

// NewAdapter creates a disconnected dYdX adapter.
func NewAdapter(cfg infra.VenueConfig) *Adapter {
	a := &Adapter{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		// One channel for the adapter's lifetime; watchers survive
		// reconnect cycles.
		updates: make(chan domain.OrderUpdate, 64),
	}
	a.push = infra.NewPushWorker(a)
	return a
}

func (a *Adapter) ID() string { return venueID }

// Connect verifies reachability and starts the push subscription.
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

// SubmitOrder places an order with a fresh clientId per attempt.
func (a *Adapter) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	body := placeOrderRequest{
		ClientID: req.ClientOrderID,
		Market:   req.Symbol,
		Side:     string(req.Side),
		Size:     req.Size.String(),
		Type:     string(req.OrderType),
	}
	if req.OrderType == domain.OrderTypeLimit {
		body.Price = req.Price.String()
	}

	var resp orderResponse
	raw, err := a.doRequest(ctx, http.MethodPost, "/v4/orders", body, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, a.classifyRejection(resp.Errors[0])
	}
	if resp.Order == nil {
		return nil, domain.NewTransientError(venueID, "SUBMIT", fmt.Errorf("empty order payload"))
	}

	return toResult(resp.Order, raw)
}

// GetOrderStatus queries a previously submitted order.
func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	var resp orderResponse
	raw, err := a.doRequest(ctx, http.MethodGet, "/v4/orders/"+orderID, nil, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, a.classifyRejection(resp.Errors[0])
	}
	if resp.Order == nil {
		return nil, domain.NewBusinessError(venueID, codeOrderNotFound, fmt.Errorf("order %s not found", orderID))
	}
	return toResult(resp.Order, raw)
}

// GetPosition returns the current exposure for a market.
func (a *Adapter) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var resp positionsResponse
	if _, err := a.doRequest(ctx, http.MethodGet, "/v4/perpetualPositions", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, a.classifyRejection(resp.Errors[0])
	}

	for _, p := range resp.Positions {
		if p.Market != symbol {
			continue
		}
		size, err := decimal.NewFromString(p.Size)
		if err != nil {
			return nil, domain.NewTransientError(venueID, "POSITION", fmt.Errorf("bad size %q: %w", p.Size, err))
		}
		entry, _ := decimal.NewFromString(p.EntryPrice)
		return &domain.Position{Symbol: symbol, Size: size, EntryPrice: entry}, nil
	}

	return &domain.Position{Symbol: symbol, Size: decimal.Zero, EntryPrice: decimal.Zero}, nil
}

// CancelOrder cancels an open order.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	var resp orderResponse
	if _, err := a.doRequest(ctx, http.MethodDelete, "/v4/orders/"+orderID, nil, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return a.classifyRejection(resp.Errors[0])
	}
	return nil
}

// Probe issues a lightweight authenticated call with a bounded timeout.
func (a *Adapter) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	var resp struct {
		Height int64 `json:"height"`
	}
	if _, err := a.doRequest(probeCtx, http.MethodGet, "/v4/height", nil, &resp); err != nil {
		return &domain.ProbeResult{Healthy: false, Latency: time.Since(start)}, err
	}

	return &domain.ProbeResult{Healthy: true, Latency: time.Since(start)}, nil
}

// OrderUpdates returns the asynchronous push channel. Stable across
// reconnect cycles; never closed.
func (a *Adapter) OrderUpdates() <-chan domain.OrderUpdate {
	return a.updates
}

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
	a.sign(req, method, path, payload)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", domain.NewTransientError(venueID, "NETWORK", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewTransientError(venueID, "READ", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return string(raw), domain.NewTransientError(venueID, "SERVER",
			fmt.Errorf("status %d: %s", resp.StatusCode, raw))
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

// sign adds the DYDX header credentials. Same HMAC shape as the indexer
// gateway expects: timestamp + method + path + body.
func (a *Adapter) sign(req *http.Request, method, path string, payload []byte) {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	mac.Write([]byte(timestamp + method + path))
	mac.Write(payload)

	req.Header.Set("DYDX-API-KEY", a.cfg.AccessKey)
	req.Header.Set("DYDX-TIMESTAMP", timestamp)
	req.Header.Set("DYDX-SIGNATURE", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("Content-Type", "application/json")
}

func (a *Adapter) classifyRejection(e apiError) error {
	switch e.Code {
	case codeMarketNotFound, codeUnderCollateral, codeOrderNotFound:
		return domain.NewBusinessError(venueID, e.Code, fmt.Errorf("%s", e.Msg))
	default:
		return domain.NewTransientError(venueID, e.Code, fmt.Errorf("%s", e.Msg))
	}
}

func toResult(order *orderPayload, raw string) (*domain.OrderResult, error) {
	filled, err := decimal.NewFromString(orZero(order.TotalFilled))
	if err != nil {
		return nil, domain.NewTransientError(venueID, "DECODE", fmt.Errorf("bad totalFilled %q", order.TotalFilled))
	}
	remaining, err := decimal.NewFromString(orZero(order.RemainingSize))
	if err != nil {
		return nil, domain.NewTransientError(venueID, "DECODE", fmt.Errorf("bad remainingSize %q", order.RemainingSize))
	}

	return &domain.OrderResult{
		OrderID:   order.ID,
		Status:    order.Status,
		Filled:    filled,
		Remaining: remaining,
		Raw:       raw,
	}, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// PushHandler implementation for the v4_orders websocket channel.

func (a *Adapter) GetURL() string { return a.cfg.WSURL }

func (a *Adapter) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	sub := map[string]string{
		"type":    "subscribe",
		"channel": "v4_orders",
		"id":      a.cfg.AccessKey,
	}
	b, _ := json.Marshal(sub)
	return a.push.Write(websocket.TextMessage, b)
}

func (a *Adapter) OnMessage(ctx context.Context, msg []byte) {
	var frame wsMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Type != "channel_data" || frame.Channel != "v4_orders" || frame.Contents == nil {
		return
	}

	filled, _ := decimal.NewFromString(orZero(frame.Contents.TotalFilled))
	remaining, _ := decimal.NewFromString(orZero(frame.Contents.RemainingSize))

	ev := domain.OrderUpdate{
		Venue:     venueID,
		OrderID:   frame.Contents.ID,
		Status:    frame.Contents.Status,
		Filled:    filled,
		Remaining: remaining,
		Ts:        time.UnixMilli(frame.TsMillis),
	}

	select {
	case a.updates <- ev:
	default:
	}
}

func (a *Adapter) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}
