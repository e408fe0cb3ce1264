package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// solDir is the state directory under the user's home.
const solDir = ".sol"

// Paths holds all resolved sol state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	SolHome        string // ~/.sol or SOL_HOME
	DBPath         string // sol.db or SOL_DB_PATH
	PIDPath        string // sol.pid or SOL_PID_PATH
	ConfigYAMLPath string // config.yaml (respects SOL_HOME)
	ConfigTOMLPath string // config.toml (respects SOL_HOME)
}

// ResolvePaths returns all sol paths, respecting env var overrides.
// Environment variables:
//   - SOL_HOME: base directory for all sol state (default: ~/.sol)
//   - SOL_DB_PATH: outbox database (default: $SOL_HOME/sol.db)
//   - SOL_PID_PATH: daemon PID file (default: $SOL_HOME/sol.pid)
func ResolvePaths() (*Paths, error) {
	home, err := resolveSolHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		SolHome:        home,
		DBPath:         resolvePathWithEnv("SOL_DB_PATH", home, "sol.db"),
		PIDPath:        resolvePathWithEnv("SOL_PID_PATH", home, "sol.pid"),
		ConfigYAMLPath: filepath.Join(home, "config.yaml"),
		ConfigTOMLPath: filepath.Join(home, "config.toml"),
	}, nil
}

// EnsureHome creates the sol home directory if it does not exist.
func (p *Paths) EnsureHome() error {
	if err := os.MkdirAll(p.SolHome, 0o700); err != nil {
		return fmt.Errorf("create sol home %s: %w", p.SolHome, err)
	}
	return nil
}

// resolveSolHome returns the sol home directory from SOL_HOME env var or ~/.sol.
func resolveSolHome() (string, error) {
	if v := os.Getenv("SOL_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, solDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
