package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists entries in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the entries table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			date        TEXT NOT NULL,
			duration    INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			refs        JSONB NOT NULL DEFAULT '[]',
			splits      JSONB NOT NULL DEFAULT '[]',
			group_id    TEXT NOT NULL DEFAULT '',
			order_key   BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_entries_date ON entries (date);
	`)
	if err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

// LoadEntries reads the full entry set at boot.
func (r *PostgresRepository) LoadEntries(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, date, duration, description, notes, refs, splits, group_id, order_key FROM entries ORDER BY date, order_key`)
	if err != nil {
		return nil, fmt.Errorf("ledger: load entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var refs, splits []byte
		if err := rows.Scan(&e.ID, &e.Date, &e.Duration, &e.Description, &e.Notes, &refs, &splits, &e.GroupID, &e.OrderKey); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if err := json.Unmarshal(refs, &e.References); err != nil {
			return nil, fmt.Errorf("ledger: decode references for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(splits, &e.Splits); err != nil {
			return nil, fmt.Errorf("ledger: decode splits for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Apply upserts and deletes entries in one transaction.
func (r *PostgresRepository) Apply(ctx context.Context, upserts []Entry, deletes []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range upserts {
		refs, err := encodeReferences(e.References)
		if err != nil {
			return err
		}
		splits, err := encodeSplits(e.Splits)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO entries (id, date, duration, description, notes, refs, splits, group_id, order_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date,
				duration = EXCLUDED.duration,
				description = EXCLUDED.description,
				notes = EXCLUDED.notes,
				refs = EXCLUDED.refs,
				splits = EXCLUDED.splits,
				group_id = EXCLUDED.group_id,
				order_key = EXCLUDED.order_key`,
			e.ID, e.Date, e.Duration, e.Description, e.Notes, refs, splits, e.GroupID, e.OrderKey)
		if err != nil {
			return fmt.Errorf("ledger: upsert entry %s: %w", e.ID, err)
		}
	}
	if len(deletes) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE id = ANY($1)`, deletes); err != nil {
			return fmt.Errorf("ledger: delete entries: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

func encodeReferences(refs []Reference) ([]byte, error) {
	if refs == nil {
		refs = []Reference{}
	}
	// Strip read-time deep links before persisting.
	clean := make([]Reference, len(refs))
	for i, ref := range refs {
		ref.URL = ""
		clean[i] = ref
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode references: %w", err)
	}
	return data, nil
}

func encodeSplits(splits []Split) ([]byte, error) {
	if splits == nil {
		splits = []Split{}
	}
	// Strip read-time warnings before persisting.
	clean := make([]Split, len(splits))
	for i, sp := range splits {
		sp.Warning = ""
		clean[i] = sp
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode splits: %w", err)
	}
	return data, nil
}
