package main

import (
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// fsChangeMsg is sent when the outbox database directory changes.
type fsChangeMsg struct{}

// debounceDuration coalesces rapid-fire sqlite WAL writes into one refresh.
const debounceDuration = 100 * time.Millisecond

// watchOutboxDir creates a one-shot watcher on the db's directory. Returns
// nil if the directory does not exist or the watcher cannot be created; the
// tick refresh alone carries the cadence then.
func watchOutboxDir(dbPath string) tea.Cmd {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil
	}

	return func() tea.Msg {
		defer watcher.Close() //nolint:errcheck // best-effort close, one-shot watcher

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceDuration)

			case <-timer.C:
				return fsChangeMsg{}

			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}
