package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteMedium implements Medium using a local SQLite database. Several
// processes may open the same file; each key carries a revision counter
// and the id of its last writer.
type SQLiteMedium struct {
	db   *sqlx.DB
	path string
}

// kvRow is one row of the kv table.
type kvRow struct {
	Value     []byte    `db:"value"`
	Revision  int64     `db:"revision"`
	Writer    string    `db:"writer"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewSQLiteMedium opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteMedium(dbPath string) (*SQLiteMedium, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers within the process.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait for other processes' write locks instead of failing fast.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	m := &SQLiteMedium{db: db, path: dbPath}
	if err := m.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return m, nil
}

// Path returns the database file path.
func (m *SQLiteMedium) Path() string {
	return m.path
}

// Close closes the underlying database connection.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (m *SQLiteMedium) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := m.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = m.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, mig := range migrations {
		if mig.version <= currentVersion {
			continue
		}
		if _, err := m.db.Exec(mig.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", mig.version, err)
		}
	}

	return nil
}

// Get returns the blob stored under key.
func (m *SQLiteMedium) Get(ctx context.Context, key string) ([]byte, Revision, error) {
	var row kvRow
	err := m.db.GetContext(ctx, &row,
		"SELECT value, revision, writer, updated_at FROM kv WHERE key = ?", key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Revision{}, ErrNotFound
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("reading key %s: %w", key, err)
	}

	return row.Value, row.revision(), nil
}

// Set inserts or replaces the blob stored under key and bumps its revision.
func (m *SQLiteMedium) Set(
	ctx context.Context,
	key string,
	value []byte,
	writer string,
) (Revision, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, revision, writer, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			revision   = kv.revision + 1,
			writer     = excluded.writer,
			updated_at = excluded.updated_at`,
		key, value, writer, time.Now().UTC(),
	)
	if err != nil {
		return Revision{}, fmt.Errorf("writing key %s: %w", key, err)
	}

	var row kvRow
	err = tx.GetContext(ctx, &row,
		"SELECT value, revision, writer, updated_at FROM kv WHERE key = ?", key,
	)
	if err != nil {
		return Revision{}, fmt.Errorf("reading back key %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("committing key %s: %w", key, err)
	}

	return row.revision(), nil
}

// Revision returns the current revision of key.
func (m *SQLiteMedium) Revision(ctx context.Context, key string) (Revision, error) {
	var row kvRow
	err := m.db.GetContext(ctx, &row,
		"SELECT revision, writer, updated_at FROM kv WHERE key = ?", key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("reading revision of %s: %w", key, err)
	}

	return row.revision(), nil
}

func (r kvRow) revision() Revision {
	return Revision{Seq: r.Revision, Writer: r.Writer, UpdatedAt: r.UpdatedAt}
}
