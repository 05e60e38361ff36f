package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// SQLiteRepository persists entries in a local SQLite file, the single-user
// deployment mode.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository constructs a SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the entries table when missing.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			date        TEXT NOT NULL,
			duration    INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			refs        TEXT NOT NULL DEFAULT '[]',
			splits      TEXT NOT NULL DEFAULT '[]',
			group_id    TEXT NOT NULL DEFAULT '',
			order_key   INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_entries_date ON entries (date);
	`)
	if err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

// LoadEntries reads the full entry set at boot.
func (r *SQLiteRepository) LoadEntries(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, date, duration, description, notes, refs, splits, group_id, order_key FROM entries ORDER BY date, order_key`)
	if err != nil {
		return nil, fmt.Errorf("ledger: load entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var refs, splits string
		if err := rows.Scan(&e.ID, &e.Date, &e.Duration, &e.Description, &e.Notes, &refs, &splits, &e.GroupID, &e.OrderKey); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &e.References); err != nil {
			return nil, fmt.Errorf("ledger: decode references for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(splits), &e.Splits); err != nil {
			return nil, fmt.Errorf("ledger: decode splits for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Apply upserts and deletes entries in one transaction.
func (r *SQLiteRepository) Apply(ctx context.Context, upserts []Entry, deletes []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range upserts {
		refs, err := encodeReferences(e.References)
		if err != nil {
			return err
		}
		splits, err := encodeSplits(e.Splits)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (id, date, duration, description, notes, refs, splits, group_id, order_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				date = excluded.date,
				duration = excluded.duration,
				description = excluded.description,
				notes = excluded.notes,
				refs = excluded.refs,
				splits = excluded.splits,
				group_id = excluded.group_id,
				order_key = excluded.order_key`,
			e.ID, e.Date, e.Duration, e.Description, e.Notes, string(refs), string(splits), e.GroupID, e.OrderKey)
		if err != nil {
			return fmt.Errorf("ledger: upsert entry %s: %w", e.ID, err)
		}
	}
	if len(deletes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(deletes)), ",")
		args := make([]any, len(deletes))
		for i, id := range deletes {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("ledger: delete entries: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}
