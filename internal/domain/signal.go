package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes market from limit execution.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Signal is a normalized trade instruction derived from an inbound alert.
// Immutable after creation; only the Processed flag is flipped by the pipeline.
type Signal struct {
	Fingerprint string          `json:"fingerprint"`
	Source      string          `json:"source"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price,omitempty"` // zero for market orders
	OrderType   OrderType       `json:"order_type"`
	ReceivedAt  time.Time       `json:"received_at"`
	Processed   bool            `json:"processed"`
}

// ValidationError identifies the offending field of a rejected payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: field %q: %s", e.Field, e.Reason)
}

// RawSignal is the inbound alert payload before validation.
type RawSignal struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price,omitempty"`
	OrderType string `json:"order_type,omitempty"`
}

// NewSignal validates a raw alert payload and builds an immutable Signal.
// Rejections happen here, before anything reaches the fan-out core.
func NewSignal(raw RawSignal, source string, now time.Time) (*Signal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw.Symbol))
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "required"}
	}

	var side Side
	switch strings.ToUpper(strings.TrimSpace(raw.Side)) {
	case "BUY", "LONG":
		side = SideBuy
	case "SELL", "SHORT":
		side = SideSell
	default:
		return nil, &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}

	size, err := decimal.NewFromString(strings.TrimSpace(raw.Size))
	if err != nil {
		return nil, &ValidationError{Field: "size", Reason: "not a decimal"}
	}
	if size.Sign() <= 0 {
		return nil, &ValidationError{Field: "size", Reason: "must be positive"}
	}

	orderType := OrderTypeMarket
	switch strings.ToUpper(strings.TrimSpace(raw.OrderType)) {
	case "", "MARKET":
		orderType = OrderTypeMarket
	case "LIMIT":
		orderType = OrderTypeLimit
	default:
		return nil, &ValidationError{Field: "order_type", Reason: "must be market or limit"}
	}

	price := decimal.Zero
	if raw.Price != "" {
		price, err = decimal.NewFromString(strings.TrimSpace(raw.Price))
		if err != nil {
			return nil, &ValidationError{Field: "price", Reason: "not a decimal"}
		}
		if price.Sign() < 0 {
			return nil, &ValidationError{Field: "price", Reason: "must not be negative"}
		}
	}
	if orderType == OrderTypeLimit && price.Sign() <= 0 {
		return nil, &ValidationError{Field: "price", Reason: "required for limit orders"}
	}

	sig := &Signal{
		Source:     source,
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Price:      price,
		OrderType:  orderType,
		ReceivedAt: now,
	}
	sig.Fingerprint = ComputeFingerprint(sig, now)
	return sig, nil
}

// FingerprintBucket is the coarse time granularity folded into the fingerprint.
// Identical alerts inside one bucket collapse to one signal; the same alert in a
// later bucket is a distinct signal.
const FingerprintBucket = time.Minute

// ComputeFingerprint hashes the normalized signal body together with the minute
// bucket of the receive time. Deterministic for identical content within a bucket.
func ComputeFingerprint(sig *Signal, now time.Time) string {
	body := struct {
		Symbol    string    `json:"symbol"`
		Side      Side      `json:"side"`
		Size      string    `json:"size"`
		Price     string    `json:"price"`
		OrderType OrderType `json:"order_type"`
		Source    string    `json:"source"`
		Bucket    int64     `json:"bucket"`
	}{
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Size:      sig.Size.String(),
		Price:     sig.Price.String(),
		OrderType: sig.OrderType,
		Source:    sig.Source,
		Bucket:    now.UTC().Truncate(FingerprintBucket).Unix(),
	}

	data, _ := json.Marshal(body)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
