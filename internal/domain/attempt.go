package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the terminal classification of one (signal, venue) attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "PENDING"
	AttemptFilled  AttemptStatus = "FILLED"
	AttemptPartial AttemptStatus = "PARTIAL"
	AttemptFailed  AttemptStatus = "FAILED"
)

// ExecutionAttempt is the append-only audit record for one fan-out attempt
// against one venue. Written exactly once per round, never updated or deleted.
// SignalFingerprint is a soft reference; signals may be purged independently.
type ExecutionAttempt struct {
	ID                string
	SignalFingerprint string
	Venue             string
	Symbol            string
	Status            AttemptStatus
	Filled            decimal.Decimal
	Remaining         decimal.Decimal
	Raw               string
	Error             string
	Latency           time.Duration
	CreatedAt         time.Time
}

// ClassifyFill maps a fill breakdown onto an attempt status.
// PARTIAL strictly requires filled > 0 and remaining > 0. A zero fill is never
// partial: it is FAILED when an error occurred, PENDING otherwise.
func ClassifyFill(filled, remaining decimal.Decimal, failed bool) AttemptStatus {
	switch {
	case filled.Sign() > 0 && remaining.Sign() > 0:
		return AttemptPartial
	case filled.Sign() > 0:
		return AttemptFilled
	case failed:
		return AttemptFailed
	default:
		return AttemptPending
	}
}
