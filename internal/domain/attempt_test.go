package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestClassifyFill(t *testing.T) {
	tests := []struct {
		name      string
		filled    string
		remaining string
		failed    bool
		want      AttemptStatus
	}{
		{"half filled", "0.5", "0.5", false, AttemptPartial},
		{"fully filled", "1.0", "0.0", false, AttemptFilled},
		{"partial despite error", "0.3", "0.7", true, AttemptPartial},
		{"nothing filled with error", "0", "1.0", true, AttemptFailed},
		{"nothing filled no error", "0", "1.0", false, AttemptPending},
		{"full fill tiny dust", "0.00000001", "0", false, AttemptFilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFill(d(tt.filled), d(tt.remaining), tt.failed)
			if got != tt.want {
				t.Errorf("ClassifyFill(%s, %s, %v) = %s, want %s",
					tt.filled, tt.remaining, tt.failed, got, tt.want)
			}
		})
	}
}

func TestClassifyFill_ZeroFillNeverPartial(t *testing.T) {
	for _, failed := range []bool{true, false} {
		if got := ClassifyFill(d("0"), d("0.5"), failed); got == AttemptPartial {
			t.Errorf("zero fill classified as PARTIAL (failed=%v)", failed)
		}
	}
}
