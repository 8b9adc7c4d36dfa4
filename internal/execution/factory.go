package execution

import (
	"fmt"
	"log/slog"
	"os"

	"dexrelay/internal/domain"
	"dexrelay/internal/infra"
	"dexrelay/internal/infra/dydx"
	"dexrelay/internal/infra/hyperliquid"
)

// Mode represents the execution mode.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// VenueFactory builds the concrete adapter set from configuration. The
// processor receives the resolved set via constructor injection at startup;
// there is no runtime mock-vs-real branch anywhere past this point.
type VenueFactory struct {
	config *infra.Config
}

// NewVenueFactory creates a new factory.
func NewVenueFactory(cfg *infra.Config) *VenueFactory {
	return &VenueFactory{config: cfg}
}

// CreateVenues returns the adapters for the configured mode.
func (f *VenueFactory) CreateVenues() ([]domain.VenueAdapter, error) {
	mode := Mode(f.config.Trading.Mode)

	slog.Info("initializing venue set", "mode", mode)

	switch mode {
	case ModePaper:
		// Simulated venues mirror the live topology so fan-out behaves
		// identically in both modes.
		venues := []domain.VenueAdapter{}
		if f.config.Venues.Hyperliquid.Enabled {
			venues = append(venues, NewPaperVenue("PAPER-HYPERLIQUID"))
		}
		if f.config.Venues.Dydx.Enabled {
			venues = append(venues, NewPaperVenue("PAPER-DYDX"))
		}
		if len(venues) == 0 {
			venues = append(venues, NewPaperVenue("PAPER"))
		}
		return venues, nil

	case ModeLive:
		// Safety latch: live execution needs explicit operator confirmation.
		if os.Getenv("CONFIRM_LIVE_TRADING") != "true" {
			return nil, fmt.Errorf("SAFETY_GUARD: live trading requires CONFIRM_LIVE_TRADING=true environment variable")
		}

		venues := []domain.VenueAdapter{}
		if f.config.Venues.Hyperliquid.Enabled {
			venues = append(venues, hyperliquid.NewAdapter(f.config.Venues.Hyperliquid))
		}
		if f.config.Venues.Dydx.Enabled {
			venues = append(venues, dydx.NewAdapter(f.config.Venues.Dydx))
		}
		if len(venues) == 0 {
			return nil, fmt.Errorf("live mode requires at least one enabled venue")
		}
		return venues, nil

	default:
		return nil, fmt.Errorf("unknown execution mode: %s", mode)
	}
}
