package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteRepository persists registry rows in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository constructs a SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the registry tables when missing.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			number      TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			project     TEXT NOT NULL DEFAULT '',
			open_date   TEXT NOT NULL DEFAULT '',
			close_date  TEXT NOT NULL DEFAULT '',
			active      INTEGER NOT NULL DEFAULT 1
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_number_active ON accounts (number) WHERE active = 1;

		CREATE TABLE IF NOT EXISTS link_types (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			title        TEXT NOT NULL,
			url_template TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("registry: ensure schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	query := `SELECT id, number, description, project, open_date, close_date, active FROM accounts WHERE active = 1 ORDER BY number`
	if includeInactive {
		query = `SELECT id, number, description, project, open_date, close_date, active FROM accounts ORDER BY number`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("registry: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Number, &a.Description, &a.Project, &a.OpenDate, &a.CloseDate, &a.Active); err != nil {
			return nil, fmt.Errorf("registry: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, number, description, project, open_date, close_date, active FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Number, &a.Description, &a.Project, &a.OpenDate, &a.CloseDate, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if err != nil {
		return Account{}, fmt.Errorf("registry: get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) InsertAccount(ctx context.Context, a Account) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (number, description, project, open_date, close_date, active) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Number, a.Description, a.Project, a.OpenDate, a.CloseDate, a.Active)
	if err != nil {
		if isSQLiteUnique(err) {
			return 0, fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
		}
		return 0, fmt.Errorf("registry: insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("registry: insert account id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a Account) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET number = ?, description = ?, project = ?, open_date = ?, close_date = ?, active = ? WHERE id = ?`,
		a.Number, a.Description, a.Project, a.OpenDate, a.CloseDate, a.Active, a.ID)
	if err != nil {
		if isSQLiteUnique(err) {
			return fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
		}
		return fmt.Errorf("registry: update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: update account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: account %d", ErrNotFound, a.ID)
	}
	return nil
}

func (r *SQLiteRepository) ListLinkTypes(ctx context.Context) ([]LinkType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, url_template FROM link_types ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("registry: list link types: %w", err)
	}
	defer rows.Close()

	var types []LinkType
	for rows.Next() {
		var lt LinkType
		if err := rows.Scan(&lt.ID, &lt.Title, &lt.URLTemplate); err != nil {
			return nil, fmt.Errorf("registry: scan link type: %w", err)
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

func (r *SQLiteRepository) GetLinkType(ctx context.Context, id int64) (LinkType, error) {
	var lt LinkType
	err := r.db.QueryRowContext(ctx, `SELECT id, title, url_template FROM link_types WHERE id = ?`, id).
		Scan(&lt.ID, &lt.Title, &lt.URLTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkType{}, fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	if err != nil {
		return LinkType{}, fmt.Errorf("registry: get link type: %w", err)
	}
	return lt, nil
}

func (r *SQLiteRepository) InsertLinkType(ctx context.Context, lt LinkType) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO link_types (title, url_template) VALUES (?, ?)`, lt.Title, lt.URLTemplate)
	if err != nil {
		return 0, fmt.Errorf("registry: insert link type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("registry: insert link type id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateLinkType(ctx context.Context, lt LinkType) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE link_types SET title = ?, url_template = ? WHERE id = ?`, lt.Title, lt.URLTemplate, lt.ID)
	if err != nil {
		return fmt.Errorf("registry: update link type: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: update link type: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: link type %d", ErrNotFound, lt.ID)
	}
	return nil
}

func (r *SQLiteRepository) DeleteLinkType(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM link_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: delete link type: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: delete link type: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
