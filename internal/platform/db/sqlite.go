package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens a local SQLite database file. Foreign keys are enabled
// and the connection count is pinned to one, matching sqlite's writer model.
func NewSQLite(ctx context.Context, path string) (*sql.DB, error) {
	handle, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("platform/db: open sqlite: %w", err)
	}
	handle.SetMaxOpenConns(1)

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("platform/db: ping sqlite: %w", err)
	}

	return handle, nil
}
