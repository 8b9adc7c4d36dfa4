package domain

import "time"

// VenueStatus is the connectivity state of one venue as seen by the monitor.
type VenueStatus int

const (
	VenueHealthy VenueStatus = iota
	VenueDegraded
	VenueOffline
)

func (s VenueStatus) String() string {
	switch s {
	case VenueHealthy:
		return "HEALTHY"
	case VenueDegraded:
		return "DEGRADED"
	case VenueOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// VenueHealth is a read-only copy of one venue's health state.
type VenueHealth struct {
	Venue               string        `json:"venue"`
	Status              VenueStatus   `json:"-"`
	StatusText          string        `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccess         time.Time     `json:"last_success,omitzero"`
	Latency             time.Duration `json:"latency_ns"`
	Reconnecting        bool          `json:"reconnecting"`
}

// HealthSnapshot is the aggregate view served to dashboard collaborators.
type HealthSnapshot struct {
	Status     VenueStatus   `json:"-"`
	StatusText string        `json:"status"`
	Venues     []VenueHealth `json:"venues"`
}

// AggregateStatus folds per-venue states into one overall status: healthy when
// every venue is healthy (or none are configured), offline when all are
// unreachable, degraded for any mix.
func AggregateStatus(venues []VenueHealth) VenueStatus {
	if len(venues) == 0 {
		return VenueHealthy
	}
	healthy, offline := 0, 0
	for _, v := range venues {
		switch v.Status {
		case VenueHealthy:
			healthy++
		case VenueOffline:
			offline++
		}
	}
	switch {
	case healthy == len(venues):
		return VenueHealthy
	case offline == len(venues):
		return VenueOffline
	default:
		return VenueDegraded
	}
}
