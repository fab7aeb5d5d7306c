// Package overrides stores per-device user customizations (room
// assignment, display name, visibility) and layers them over the
// defaults the grouping engine derives. Writes are debounced so a
// burst of edits lands as one persisted record.
package overrides

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Backend persists serialized override payloads under string keys.
// GetItem returns the empty string, not an error, when the key has
// never been written.
type Backend interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
}

// SQLiteBackend is the production Backend, a single key-value table in
// SQLite. All methods are safe for concurrent use (SQLite serializes
// writes).
type SQLiteBackend struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteBackend opens or creates the backend database at the given
// path. The schema is created automatically on first use.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &SQLiteBackend{db: db, ownsDB: true}
	if err := b.migrateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return b, nil
}

// NewSQLiteBackendWithDB wraps an already-open database handle. The
// caller keeps ownership of the handle; Close becomes a no-op for it.
func NewSQLiteBackendWithDB(db *sql.DB) (*SQLiteBackend, error) {
	b := &SQLiteBackend{db: db}
	if err := b.migrateSchema(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// Close closes the database connection when the backend opened it
// itself. For handles passed to [NewSQLiteBackendWithDB] it does
// nothing; the caller closes them.
func (b *SQLiteBackend) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) migrateSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dashboard_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// GetItem returns the stored value for a key. Returns empty string and
// nil error if the key does not exist.
func (b *SQLiteBackend) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM dashboard_state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetItem upserts a key/value pair, refreshing the updated_at
// timestamp.
func (b *SQLiteBackend) SetItem(ctx context.Context, key, value string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO dashboard_state (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
