package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQueryTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	name          TEXT,
	mode          TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (email, mode)
);`

// Repository provides database access for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the accounts table if needed.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

// CreateAccount persists a new account.
func (r *Repository) CreateAccount(ctx context.Context, acct Account) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO accounts (id, email, name, mode, password_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, name, mode, password_hash, created_at;`

	row := r.pool.QueryRow(ctx, query, acct.ID, acct.Email, acct.Name, acct.Mode, acct.PasswordHash)
	created, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return created, nil
}

// FindAccount fetches the account registered for email in mode.
func (r *Repository) FindAccount(ctx context.Context, email, mode string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, email, name, mode, password_hash, created_at
FROM accounts
WHERE email = $1 AND mode = $2;`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, email, mode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

// FindByEmail returns the oldest account for email in any mode.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, email, name, mode, password_hash, created_at
FROM accounts
WHERE email = $1
ORDER BY created_at
LIMIT 1;`

	acct, err := scanAccount(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Mode, &acct.PasswordHash, &acct.CreatedAt)
	return acct, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
