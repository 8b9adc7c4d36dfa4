package infra

import (
	"math/rand"
	"time"
)

// BackoffPolicy produces exponentially growing, capped, jittered retry delays.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	JitterMin float64 // multiplier lower bound, e.g. 0.8
	JitterMax float64 // multiplier upper bound, e.g. 1.2
}

// DefaultBackoffPolicy returns the standard policy: 1s base, doubled per retry,
// capped at 30s, with 0.8-1.2x jitter to avoid synchronized retry storms.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		JitterMin: 0.8,
		JitterMax: 1.2,
	}
}

// Delay returns the pre-jitter backoff for a given retry count.
// Logic: BaseDelay * 2^retryCount, capped at MaxDelay.
// If retryCount is negative, it returns BaseDelay.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		return p.BaseDelay
	}

	// 2^30 seconds already dwarfs any sane cap; stop shifting early to
	// prevent overflow.
	if retryCount > 30 {
		return p.MaxDelay
	}

	backoff := p.BaseDelay * time.Duration(1<<retryCount)
	if backoff > p.MaxDelay {
		return p.MaxDelay
	}
	return backoff
}

// JitteredDelay applies the randomized jitter multiplier to Delay.
func (p BackoffPolicy) JitteredDelay(retryCount int) time.Duration {
	d := p.Delay(retryCount)
	if p.JitterMax <= p.JitterMin {
		return d
	}
	factor := p.JitterMin + rand.Float64()*(p.JitterMax-p.JitterMin)
	return time.Duration(float64(d) * factor)
}
