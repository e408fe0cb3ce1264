package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"sol/pkg/delivery"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration, read from $SOL_HOME/config.yaml or
// config.toml (yaml wins when both exist). Durations are written as Go
// duration strings ("5s", "1m30s").
type FileConfig struct {
	BaseURL      string `yaml:"base_url"      toml:"base_url"`
	AuthToken    string `yaml:"auth_token"    toml:"auth_token"`
	TickInterval string `yaml:"tick_interval" toml:"tick_interval"`
	PendingTTL   string `yaml:"pending_ttl"   toml:"pending_ttl"`
	MaxAttempts  int    `yaml:"max_attempts"  toml:"max_attempts"`
	BackoffBase  string `yaml:"backoff_base"  toml:"backoff_base"`
	BackoffCap   string `yaml:"backoff_cap"   toml:"backoff_cap"`
}

// LoadConfig reads the config file, if any, and applies env overrides
// (SOL_BASE_URL, SOL_AUTH_TOKEN). A missing file is not an error: every field
// has a working default except BaseURL, which the daemon validates.
func LoadConfig(paths *Paths) (FileConfig, error) {
	var cfg FileConfig

	if data, err := os.ReadFile(paths.ConfigYAMLPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", paths.ConfigYAMLPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", paths.ConfigYAMLPath, err)
	} else if data, err := os.ReadFile(paths.ConfigTOMLPath); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", paths.ConfigTOMLPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", paths.ConfigTOMLPath, err)
	}

	if v := os.Getenv("SOL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SOL_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	return cfg, nil
}

// DeliveryConfig converts the file durations into a delivery.Config. Unset
// fields stay zero and pick up the engine defaults.
func (c FileConfig) DeliveryConfig() (delivery.Config, error) {
	ttl, err := parseOptionalDuration("pending_ttl", c.PendingTTL)
	if err != nil {
		return delivery.Config{}, err
	}
	base, err := parseOptionalDuration("backoff_base", c.BackoffBase)
	if err != nil {
		return delivery.Config{}, err
	}
	ceiling, err := parseOptionalDuration("backoff_cap", c.BackoffCap)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		PendingTTL:  ttl,
		MaxAttempts: c.MaxAttempts,
		BackoffBase: base,
		BackoffCap:  ceiling,
	}, nil
}

// Tick returns the configured tick interval, or zero for the scheduler
// default.
func (c FileConfig) Tick() (time.Duration, error) {
	return parseOptionalDuration("tick_interval", c.TickInterval)
}

func parseOptionalDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	return d, nil
}
