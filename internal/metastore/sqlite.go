package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps records in an embedded SQLite database.
// Writers are serialized by SQLite itself, so Put and Remove are single statements.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open database and applies pending migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

const sqliteSchemaVersion = 1

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []func() error{
		s.migrateV1,
	}
	for i := version; i < len(migrations) && i < sqliteSchemaVersion; i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV1() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS shares (
	code              TEXT PRIMARY KEY,
	storage_location  TEXT NOT NULL,
	display_name      TEXT NOT NULL,
	original_name     TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	size_bytes        INTEGER NOT NULL,
	source_size_bytes INTEGER NOT NULL DEFAULT 0,
	checksum          TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	expires_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shares_expires_at ON shares(expires_at);`)
	return err
}

const sqliteColumns = `code, storage_location, display_name, original_name, category, size_bytes, source_size_bytes, checksum, created_at, expires_at`

// Put inserts rec. A conflicting code leaves the table untouched.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO shares (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(code) DO NOTHING`,
		rec.Code, rec.StorageLocation, rec.DisplayName, rec.OriginalName, rec.Category,
		rec.SizeBytes, rec.SourceSizeBytes, rec.Checksum,
		formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	if n == 0 {
		return ErrDuplicateCode
	}
	return nil
}

// Get returns the record for code.
func (s *SQLiteStore) Get(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM shares WHERE code = ?`, code)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get share: %w", err)
	}
	return rec, nil
}

// Remove deletes the record and returns it.
func (s *SQLiteStore) Remove(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `DELETE FROM shares WHERE code = ? RETURNING `+sqliteColumns, code)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("delete share: %w", err)
	}
	return rec, nil
}

// List returns all records ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM shares ORDER BY created_at, code`)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (Record, error) {
	var (
		rec                  Record
		createdAt, expiresAt string
	)
	if err := row.Scan(
		&rec.Code,
		&rec.StorageLocation,
		&rec.DisplayName,
		&rec.OriginalName,
		&rec.Category,
		&rec.SizeBytes,
		&rec.SourceSizeBytes,
		&rec.Checksum,
		&createdAt,
		&expiresAt,
	); err != nil {
		return Record{}, err
	}
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, err
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
