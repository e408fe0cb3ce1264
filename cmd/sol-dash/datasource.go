package main

import (
	"context"
	"fmt"
	"os"

	"sol/pkg/outbox"
)

// snapshotLimit caps how many recent transmissions the dashboard shows.
const snapshotLimit = 50

// Row is one transmission line in the dashboard.
type Row struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	LastError     string `json:"last_error,omitempty"`
}

// Snapshot is one read of the outbox state.
type Snapshot struct {
	Counts map[string]int `json:"counts"`
	Rows   []Row          `json:"transmissions"`
}

// FetchSnapshot reads counts and recent transmissions from the outbox db at
// dbPath. The read is independent of the daemon: the dashboard only ever
// observes, it never mutates.
//
// Error cases:
//   - dbPath does not exist → returns error
//   - SQL query error → returns error
func FetchSnapshot(ctx context.Context, dbPath string) (Snapshot, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return Snapshot{}, fmt.Errorf("outbox db %s: %w", dbPath, err)
	}

	db, err := outbox.OpenDB(dbPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open outbox db %s: %w", dbPath, err)
	}
	defer db.Close() //nolint:errcheck // best-effort close on read-only query path

	store := outbox.NewStore(db)

	counts, err := store.CountsByStatus(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count transmissions: %w", err)
	}
	recent, err := store.Recent(ctx, snapshotLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list transmissions: %w", err)
	}

	snap := Snapshot{Counts: make(map[string]int, len(counts)), Rows: make([]Row, 0, len(recent))}
	for status, n := range counts {
		snap.Counts[string(status)] = n
	}
	for _, tm := range recent {
		snap.Rows = append(snap.Rows, Row{
			ID:            tm.ID,
			Status:        string(tm.Status),
			CorrelationID: tm.CorrelationID,
			CreatedAt:     tm.CreatedAt,
			LastError:     tm.LastError,
		})
	}
	return snap, nil
}
