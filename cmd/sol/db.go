package main

import (
	"context"
	"database/sql"
	"fmt"

	"sol/pkg/outbox"
)

// openStore opens the outbox database and ensures the schema exists.
// Callers own closing the returned DB handle.
func openStore(ctx context.Context, paths *Paths) (*outbox.Store, *sql.DB, error) {
	if err := paths.EnsureHome(); err != nil {
		return nil, nil, err
	}

	db, err := outbox.OpenDB(paths.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open outbox db %s: %w", paths.DBPath, err)
	}

	store := outbox.NewStore(db)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init outbox schema: %w", err)
	}
	return store, db, nil
}
