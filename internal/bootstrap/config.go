package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"lease_engine/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if cfg.Store.Driver == "sqlite" {
		dir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("store directory %s: %w", dir, err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0o200 == 0 {
			return fmt.Errorf("store directory %s is not writable", dir)
		}
	}

	if cfg.PriceFeed.URL == "" && len(cfg.PriceFeed.StaticPrices) == 0 {
		return fmt.Errorf("no price source: set price_feed.url or price_feed.static_prices")
	}

	return nil
}
