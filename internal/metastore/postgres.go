package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// PostgresStore provides share metadata storage on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store on an existing pool. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the shares table when missing.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
CREATE TABLE IF NOT EXISTS shares (
	code              TEXT PRIMARY KEY,
	storage_location  TEXT NOT NULL,
	display_name      TEXT NOT NULL,
	original_name     TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	size_bytes        BIGINT NOT NULL,
	source_size_bytes BIGINT NOT NULL DEFAULT 0,
	checksum          TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	expires_at        TIMESTAMPTZ NOT NULL CHECK (expires_at > created_at)
);
CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares (expires_at);`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure shares schema: %w", err)
	}
	return nil
}

const pgColumns = `code, storage_location, display_name, original_name, category, size_bytes, source_size_bytes, checksum, created_at, expires_at`

// Put inserts a record.
func (r *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO shares (` + pgColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := r.pool.Exec(ctx, query,
		rec.Code,
		rec.StorageLocation,
		rec.DisplayName,
		rec.OriginalName,
		rec.Category,
		rec.SizeBytes,
		rec.SourceSizeBytes,
		rec.Checksum,
		rec.CreatedAt.UTC(),
		rec.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("create share metadata: %w", err)
	}
	return nil
}

// Get fetches a record by code.
func (r *PostgresStore) Get(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + pgColumns + ` FROM shares WHERE code = $1;`

	rec, err := scanPostgres(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get share metadata: %w", err)
	}
	return rec, nil
}

// Remove deletes a record and returns it.
func (r *PostgresStore) Remove(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `DELETE FROM shares WHERE code = $1 RETURNING ` + pgColumns + `;`

	rec, err := scanPostgres(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("delete share metadata: %w", err)
	}
	return rec, nil
}

// List returns every record ordered by creation time.
func (r *PostgresStore) List(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + pgColumns + ` FROM shares ORDER BY created_at, code;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share metadata: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return out, nil
}

// Ping checks database reachability.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (r *PostgresStore) Close() error { return nil }

func scanPostgres(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.Code,
		&rec.StorageLocation,
		&rec.DisplayName,
		&rec.OriginalName,
		&rec.Category,
		&rec.SizeBytes,
		&rec.SourceSizeBytes,
		&rec.Checksum,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
