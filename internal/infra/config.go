package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// VenueConfig holds connection and credential settings for one venue.
type VenueConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RestURL   string `yaml:"rest_url"`
	WSURL     string `yaml:"ws_url"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Config holds every application setting. Secrets in the file are overridden
// by environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "PAPER" or "LIVE"
	} `yaml:"trading"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Venues struct {
		Hyperliquid VenueConfig `yaml:"hyperliquid"`
		Dydx        VenueConfig `yaml:"dydx"`
	} `yaml:"venues"`

	Limits struct {
		BurstPerSource  int     `yaml:"burst_per_source"`
		SignalsPerSec   float64 `yaml:"signals_per_sec"`
		VenueTimeoutSec int     `yaml:"venue_timeout_sec"`
	} `yaml:"limits"`

	Retry struct {
		MaxAttempts int `yaml:"max_attempts"`
		BaseDelayMS int `yaml:"base_delay_ms"`
		MaxDelayMS  int `yaml:"max_delay_ms"`
	} `yaml:"retry"`

	Health struct {
		ProbeIntervalSec     int `yaml:"probe_interval_sec"`
		ProbeTimeoutMS       int `yaml:"probe_timeout_ms"`
		OfflineThreshold     int `yaml:"offline_threshold"`
		ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`
	} `yaml:"health"`

	Dedup struct {
		Backend   string `yaml:"backend"` // "memory" or "redis"
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		TTLMin    int    `yaml:"ttl_min"`
	} `yaml:"dedup"`

	Alerts struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"alerts"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Limits.BurstPerSource == 0 {
		c.Limits.BurstPerSource = 5
	}
	if c.Limits.SignalsPerSec == 0 {
		c.Limits.SignalsPerSec = 1
	}
	if c.Limits.VenueTimeoutSec == 0 {
		c.Limits.VenueTimeoutSec = 20
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelayMS == 0 {
		c.Retry.BaseDelayMS = 1000
	}
	if c.Retry.MaxDelayMS == 0 {
		c.Retry.MaxDelayMS = 30000
	}
	if c.Health.ProbeIntervalSec == 0 {
		c.Health.ProbeIntervalSec = 30
	}
	if c.Health.ProbeTimeoutMS == 0 {
		c.Health.ProbeTimeoutMS = 5000
	}
	if c.Health.OfflineThreshold == 0 {
		c.Health.OfflineThreshold = 3
	}
	if c.Health.ReconnectMaxAttempts == 0 {
		c.Health.ReconnectMaxAttempts = 10
	}
	if c.Dedup.Backend == "" {
		c.Dedup.Backend = "memory"
	}
	if c.Dedup.TTLMin == 0 {
		c.Dedup.TTLMin = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "PAPER", "LIVE":
	default:
		return fmt.Errorf("trading mode must be PAPER or LIVE, got %q", c.Trading.Mode)
	}

	for name, v := range map[string]VenueConfig{
		"hyperliquid": c.Venues.Hyperliquid,
		"dydx":        c.Venues.Dydx,
	} {
		if !v.Enabled {
			continue
		}
		if !strings.HasPrefix(v.RestURL, "http://") && !strings.HasPrefix(v.RestURL, "https://") {
			return fmt.Errorf("invalid %s REST URL: %s", name, v.RestURL)
		}
		if !strings.HasPrefix(v.WSURL, "ws://") && !strings.HasPrefix(v.WSURL, "wss://") {
			return fmt.Errorf("invalid %s WS URL: %s", name, v.WSURL)
		}
	}

	if c.Dedup.Backend != "memory" && c.Dedup.Backend != "redis" {
		return fmt.Errorf("dedup backend must be memory or redis, got %q", c.Dedup.Backend)
	}
	if c.Dedup.Backend == "redis" && c.Dedup.RedisAddr == "" {
		return fmt.Errorf("redis dedup backend requires redis_addr")
	}

	if c.Health.OfflineThreshold < 1 {
		return fmt.Errorf("offline threshold must be at least 1")
	}

	return nil
}

// RetryConfig builds the retry executor parameters from config.
func (c *Config) RetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: c.Retry.MaxAttempts,
		Backoff: BackoffPolicy{
			BaseDelay: time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:  time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
			JitterMin: 0.8,
			JitterMax: 1.2,
		},
	}
}

// overrideWithEnv applies environment variables over file values.
// Environment always wins for credentials so keys can stay out of the file.
func overrideWithEnv(cfg *Config) {
	if cfg.Venues.Hyperliquid.SecretKey != "" || cfg.Venues.Dydx.SecretKey != "" {
		fmt.Println("WARNING: API secrets found in config file.")
		fmt.Println("  Recommendation: use environment variables instead:")
		fmt.Println("  - RELAY_HYPERLIQUID_KEY, RELAY_HYPERLIQUID_SECRET")
		fmt.Println("  - RELAY_DYDX_KEY, RELAY_DYDX_SECRET")
	}

	if key := os.Getenv("RELAY_HYPERLIQUID_KEY"); key != "" {
		cfg.Venues.Hyperliquid.AccessKey = key
	}
	if secret := os.Getenv("RELAY_HYPERLIQUID_SECRET"); secret != "" {
		cfg.Venues.Hyperliquid.SecretKey = secret
	}
	if key := os.Getenv("RELAY_DYDX_KEY"); key != "" {
		cfg.Venues.Dydx.AccessKey = key
	}
	if secret := os.Getenv("RELAY_DYDX_SECRET"); secret != "" {
		cfg.Venues.Dydx.SecretKey = secret
	}
	if addr := os.Getenv("RELAY_REDIS_ADDR"); addr != "" {
		cfg.Dedup.RedisAddr = addr
	}
	if addr := os.Getenv("RELAY_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
}
