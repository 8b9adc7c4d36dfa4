// Package app wires the relay together at startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"dexrelay/internal/alert"
	"dexrelay/internal/dedup"
	"dexrelay/internal/execlog"
	"dexrelay/internal/infra"
	"dexrelay/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Store   *execlog.Store
	Deduper *dedup.Deduplicator
	Alerts  *alert.Notifier
	Metrics *metrics.Metrics

	redisClient *redis.Client
	unlock      func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, workspace
// directories, the execution log database and the shared collaborators.
func (b *Bootstrap) Initialize() error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// Optional secrets file for live credentials. Environment variables
	// win; the file only fills what is still missing.
	if cfg.Trading.Mode == "LIVE" {
		if secrets, err := infra.LoadSecretConfig(filepath.Join("secrets", "live.yaml")); err == nil {
			secrets.Apply(cfg)
			slog.Info("live credentials loaded from secrets file")
		}
	}

	// Data isolation per mode: _workspace/data/{mode}/execlog.db
	mode := strings.ToLower(cfg.Trading.Mode)
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	logDir := filepath.Join(workDir, "logs", mode)

	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(logDir); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	// Single instance lock. Two relays over one execution log means a
	// corrupted audit trail.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "execlog.db")
	store, err := execlog.NewStore(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("execution log ready", "path", dbPath, "mode", mode)

	b.Deduper = b.buildDeduper()
	b.Metrics = metrics.New()

	if cfg.Alerts.WebhookURL != "" {
		b.Alerts = alert.NewNotifier(alert.NewWebhookSink(cfg.Alerts.WebhookURL))
		slog.Info("alerts routed to webhook")
	} else {
		b.Alerts = alert.NewNotifier(alert.SlogSink{})
	}

	return nil
}

// buildDeduper selects the dedup backend. A dead Redis degrades to the
// in-process store rather than blocking startup; dedup fails open by contract.
func (b *Bootstrap) buildDeduper() *dedup.Deduplicator {
	ttl := time.Duration(b.Config.Dedup.TTLMin) * time.Minute

	if b.Config.Dedup.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:         b.Config.Dedup.RedisAddr,
			DB:           b.Config.Dedup.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, falling back to in-memory dedup", "addr", b.Config.Dedup.RedisAddr, "err", err)
			client.Close()
		} else {
			b.redisClient = client
			slog.Info("dedup backed by redis", "addr", b.Config.Dedup.RedisAddr)
			return dedup.New(dedup.NewRedisStore(client, ttl))
		}
	}

	return dedup.New(dedup.NewMemoryStore(ttl))
}

// Close releases everything Initialize opened.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Error("failed to close execution log", "err", err)
		}
	}
	if b.redisClient != nil {
		if err := b.redisClient.Close(); err != nil {
			slog.Error("failed to close redis", "err", err)
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
