// Package sqlite implements backend.LocalCache as a key-value table in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"todosync/backend"
)

// Cache implements backend.LocalCache using SQLite
type Cache struct {
	db *sql.DB
}

var _ backend.LocalCache = (*Cache)(nil)

// New opens (or creates) the cache database at path. ":memory:" is accepted.
func New(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

// initSchema creates the kv table if it doesn't exist
func (c *Cache) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			modified TEXT NOT NULL
		);
	`

	if _, err := c.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	_, err := c.db.Exec(schema)
	return err
}

// Get returns the value stored under key. ok is false when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, modified) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// Modified returns when key was last written.
func (c *Cache) Modified(ctx context.Context, key string) (time.Time, bool, error) {
	var modifiedStr string
	err := c.db.QueryRowContext(ctx, "SELECT modified FROM kv WHERE key = ?", key).Scan(&modifiedStr)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	modified, _ := time.Parse(time.RFC3339Nano, modifiedStr)
	return modified, true, nil
}

// Close closes the database connection
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
