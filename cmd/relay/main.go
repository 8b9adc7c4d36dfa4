package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dexrelay/internal/app"
	"dexrelay/internal/domain"
	"dexrelay/internal/execlog"
	"dexrelay/internal/execution"
	"dexrelay/internal/health"
	"dexrelay/internal/infra"
	"dexrelay/internal/processor"
	"dexrelay/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// Credentials live in .env during development; absence is fine.
	_ = godotenv.Load()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("bootstrapping failed", "err", err)
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Venue set for the configured mode. The live path refuses to start
	// without the explicit confirmation latch.
	factory := execution.NewVenueFactory(cfg)
	venues, err := factory.CreateVenues()
	if err != nil {
		slog.Error("venue setup failed", "err", err)
		os.Exit(1)
	}

	execLogger := execlog.NewLogger(bootstrap.Store, bootstrap.Alerts, slog.Default())

	// A venue that refuses its first connect is not fatal; the health
	// monitor will keep trying to bring it up.
	for _, venue := range venues {
		if err := venue.Connect(ctx); err != nil {
			slog.Error("initial connect failed", "venue", venue.ID(), "err", err)
		} else {
			slog.Info("venue connected", "venue", venue.ID())
		}
		execLogger.WatchUpdates(ctx, venue.OrderUpdates())
	}
	defer func() {
		for _, venue := range venues {
			if err := venue.Disconnect(); err != nil {
				slog.Error("disconnect failed", "venue", venue.ID(), "err", err)
			}
		}
	}()

	monitor := health.NewMonitor(venues, health.Config{
		ProbeInterval:        time.Duration(cfg.Health.ProbeIntervalSec) * time.Second,
		ProbeTimeout:         time.Duration(cfg.Health.ProbeTimeoutMS) * time.Millisecond,
		OfflineThreshold:     cfg.Health.OfflineThreshold,
		ReconnectMaxAttempts: cfg.Health.ReconnectMaxAttempts,
		ReconnectBackoff:     infra.DefaultBackoffPolicy(),
	}, bootstrap.Alerts, bootstrap.Metrics, slog.Default())
	monitor.Start(ctx)
	defer monitor.Stop()

	proc := processor.New(processor.Options{
		Venues:       venues,
		Deduper:      bootstrap.Deduper,
		Limiter:      infra.NewSourceLimiter(cfg.Limits.BurstPerSource, cfg.Limits.SignalsPerSec),
		Recorder:     execLogger,
		Health:       monitor,
		Metrics:      bootstrap.Metrics,
		Logger:       slog.Default(),
		Retry:        cfg.RetryConfig(),
		VenueTimeout: time.Duration(cfg.Limits.VenueTimeoutSec) * time.Second,
	})

	srv := server.New(cfg.Server.ListenAddr, proc, monitor, bootstrap.Metrics, slog.Default())
	serverErr := srv.Start()

	slog.Info("relay operational",
		"mode", cfg.Trading.Mode,
		"venues", venueIDs(venues),
		"addr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		slog.Error("http server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}

	stop() // cancel the watch goroutines before draining them
	execLogger.Wait()
}

func venueIDs(venues []domain.VenueAdapter) []string {
	ids := make([]string, 0, len(venues))
	for _, v := range venues {
		ids = append(ids, v.ID())
	}
	return ids
}
