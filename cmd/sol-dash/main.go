// Package main implements the sol-dash interactive outbox dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

func main() {
	jsonOut := flag.Bool("json", false, "print a JSON snapshot instead of the interactive dashboard")
	flag.Parse()

	dbPath, err := resolveDBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sol-dash: %v\n", err)
		os.Exit(1)
	}

	// Robot mode: no TTY means we are piped somewhere, so emit the snapshot
	// as JSON instead of drawing.
	if *jsonOut || !isatty.IsTerminal(os.Stdout.Fd()) {
		if err := printSnapshot(dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "sol-dash: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(newModel(dbPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}

// printSnapshot writes the current outbox state to stdout as JSON.
func printSnapshot(dbPath string) error {
	snap, err := FetchSnapshot(context.Background(), dbPath)
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// resolveDBPath mirrors the sol CLI's path resolution: SOL_DB_PATH, then
// $SOL_HOME/sol.db, then ~/.sol/sol.db.
func resolveDBPath() (string, error) {
	if v := os.Getenv("SOL_DB_PATH"); v != "" {
		return v, nil
	}
	if v := os.Getenv("SOL_HOME"); v != "" {
		return filepath.Join(v, "sol.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".sol", "sol.db"), nil
}
