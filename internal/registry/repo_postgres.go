package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists registry rows in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the registry tables when missing. Account numbers
// are unique among active accounts only.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id          BIGSERIAL PRIMARY KEY,
			number      TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			project     TEXT NOT NULL DEFAULT '',
			open_date   TEXT NOT NULL DEFAULT '',
			close_date  TEXT NOT NULL DEFAULT '',
			active      BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_number_active ON accounts (number) WHERE active;

		CREATE TABLE IF NOT EXISTS link_types (
			id           BIGSERIAL PRIMARY KEY,
			title        TEXT NOT NULL,
			url_template TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("registry: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	query := `SELECT id, number, description, project, open_date, close_date, active FROM accounts WHERE active ORDER BY number`
	if includeInactive {
		query = `SELECT id, number, description, project, open_date, close_date, active FROM accounts ORDER BY number`
	}
	rows, err := r.pool.Query(ctx, query)
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

func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, number, description, project, open_date, close_date, active FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Number, &a.Description, &a.Project, &a.OpenDate, &a.CloseDate, &a.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	if err != nil {
		return Account{}, fmt.Errorf("registry: get account: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) InsertAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (number, description, project, open_date, close_date, active)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.Number, a.Description, a.Project, a.OpenDate, a.CloseDate, a.Active).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
		}
		return 0, fmt.Errorf("registry: insert account: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) UpdateAccount(ctx context.Context, a Account) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET number = $2, description = $3, project = $4, open_date = $5, close_date = $6, active = $7 WHERE id = $1`,
		a.ID, a.Number, a.Description, a.Project, a.OpenDate, a.CloseDate, a.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
		}
		return fmt.Errorf("registry: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", ErrNotFound, a.ID)
	}
	return nil
}

func (r *PostgresRepository) ListLinkTypes(ctx context.Context) ([]LinkType, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, url_template FROM link_types ORDER BY title`)
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

func (r *PostgresRepository) GetLinkType(ctx context.Context, id int64) (LinkType, error) {
	var lt LinkType
	err := r.pool.QueryRow(ctx, `SELECT id, title, url_template FROM link_types WHERE id = $1`, id).
		Scan(&lt.ID, &lt.Title, &lt.URLTemplate)
	if errors.Is(err, pgx.ErrNoRows) {
		return LinkType{}, fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	if err != nil {
		return LinkType{}, fmt.Errorf("registry: get link type: %w", err)
	}
	return lt, nil
}

func (r *PostgresRepository) InsertLinkType(ctx context.Context, lt LinkType) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO link_types (title, url_template) VALUES ($1, $2) RETURNING id`,
		lt.Title, lt.URLTemplate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("registry: insert link type: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) UpdateLinkType(ctx context.Context, lt LinkType) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE link_types SET title = $2, url_template = $3 WHERE id = $1`,
		lt.ID, lt.Title, lt.URLTemplate)
	if err != nil {
		return fmt.Errorf("registry: update link type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: link type %d", ErrNotFound, lt.ID)
	}
	return nil
}

func (r *PostgresRepository) DeleteLinkType(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM link_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("registry: delete link type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
