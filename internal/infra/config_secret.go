package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig matches the structure of secrets/live.yaml.
type SecretConfig struct {
	Venues struct {
		Hyperliquid struct {
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"hyperliquid"`
		Dydx struct {
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"dydx"`
	} `yaml:"venues"`
}

// LoadSecretConfig loads venue credentials from a separate yaml file.
// It returns an error if the file is missing (fail fast).
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse secret config: %w", err)
	}

	return &cfg, nil
}

// Apply fills credentials the main config is still missing. Values already
// set, for example from environment variables, are left alone.
func (s *SecretConfig) Apply(cfg *Config) {
	if cfg.Venues.Hyperliquid.AccessKey == "" && s.Venues.Hyperliquid.AccessKey != "" {
		cfg.Venues.Hyperliquid.AccessKey = s.Venues.Hyperliquid.AccessKey
		cfg.Venues.Hyperliquid.SecretKey = s.Venues.Hyperliquid.SecretKey
	}
	if cfg.Venues.Dydx.AccessKey == "" && s.Venues.Dydx.AccessKey != "" {
		cfg.Venues.Dydx.AccessKey = s.Venues.Dydx.AccessKey
		cfg.Venues.Dydx.SecretKey = s.Venues.Dydx.SecretKey
	}
}
