package main

import (
	"path/filepath"
	"testing"
)

func TestResolvePathsDefaultsUnderSolHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SOL_HOME", tmp)

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}

	if paths.SolHome != tmp {
		t.Errorf("SolHome = %q, want %q", paths.SolHome, tmp)
	}
	if paths.DBPath != filepath.Join(tmp, "sol.db") {
		t.Errorf("DBPath = %q", paths.DBPath)
	}
	if paths.PIDPath != filepath.Join(tmp, "sol.pid") {
		t.Errorf("PIDPath = %q", paths.PIDPath)
	}
	if paths.ConfigYAMLPath != filepath.Join(tmp, "config.yaml") {
		t.Errorf("ConfigYAMLPath = %q", paths.ConfigYAMLPath)
	}
}

func TestResolvePathsEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("SOL_HOME", tmp)
	t.Setenv("SOL_DB_PATH", "/elsewhere/outbox.db")
	t.Setenv("SOL_PID_PATH", "/run/sol.pid")

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}

	if paths.DBPath != "/elsewhere/outbox.db" {
		t.Errorf("DBPath = %q, want the SOL_DB_PATH override", paths.DBPath)
	}
	if paths.PIDPath != "/run/sol.pid" {
		t.Errorf("PIDPath = %q, want the SOL_PID_PATH override", paths.PIDPath)
	}
}
