package infra

import (
	"testing"
	"time"
)

func TestBackoffPolicy_Delay(t *testing.T) {
	p := DefaultBackoffPolicy()

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped
		{10, 30 * time.Second}, // still capped
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.retryCount, got, tt.want)
		}
	}
}

func TestBackoffPolicy_NonDecreasing(t *testing.T) {
	p := DefaultBackoffPolicy()
	prev := time.Duration(0)
	for i := 0; i < 40; i++ {
		d := p.Delay(i)
		if d < prev {
			t.Fatalf("delay decreased at retry %d: %s < %s", i, d, prev)
		}
		prev = d
	}
}

func TestBackoffPolicy_JitterBounds(t *testing.T) {
	p := DefaultBackoffPolicy()

	for i := 0; i < 100; i++ {
		d := p.JitteredDelay(2) // 4s pre-jitter
		min := time.Duration(float64(4*time.Second) * p.JitterMin)
		max := time.Duration(float64(4*time.Second) * p.JitterMax)
		if d < min || d > max {
			t.Fatalf("jittered delay %s outside [%s, %s]", d, min, max)
		}
	}
}

func TestBackoffPolicy_NoJitterConfigured(t *testing.T) {
	p := BackoffPolicy{BaseDelay: time.Second, MaxDelay: 8 * time.Second}
	if got := p.JitteredDelay(1); got != 2*time.Second {
		t.Errorf("expected exact delay without jitter config, got %s", got)
	}
}
