package domain

import "testing"

func TestAggregateStatus(t *testing.T) {
	mk := func(statuses ...VenueStatus) []VenueHealth {
		out := make([]VenueHealth, len(statuses))
		for i, s := range statuses {
			out[i] = VenueHealth{Venue: "v", Status: s}
		}
		return out
	}

	tests := []struct {
		name   string
		venues []VenueHealth
		want   VenueStatus
	}{
		{"zero venues", nil, VenueHealthy},
		{"all healthy", mk(VenueHealthy, VenueHealthy), VenueHealthy},
		{"mixed", mk(VenueHealthy, VenueOffline), VenueDegraded},
		{"degraded only", mk(VenueDegraded), VenueDegraded},
		{"all offline", mk(VenueOffline, VenueOffline), VenueOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.venues); got != tt.want {
				t.Errorf("AggregateStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVenueStatusString(t *testing.T) {
	if VenueHealthy.String() != "HEALTHY" || VenueDegraded.String() != "DEGRADED" || VenueOffline.String() != "OFFLINE" {
		t.Error("unexpected status strings")
	}
}
