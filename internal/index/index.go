// Package index is a local SQLite cache of fetched ledger entries. Rows are
// keyed by commit and note object id, so a rewritten note is never served
// from a stale row.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	commit_sha TEXT PRIMARY KEY,
	note_oid   TEXT NOT NULL,
	body       BLOB NOT NULL
);
`

// Cache wraps the index database.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer at a time; parallel stats share this handle
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached body for commit if it was stored for noteOID.
func (c *Cache) Get(commit, noteOID string) ([]byte, bool, error) {
	var oid string
	var body []byte
	err := c.db.QueryRow(`SELECT note_oid, body FROM entries WHERE commit_sha = ?`, commit).Scan(&oid, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if oid != noteOID {
		return nil, false, nil
	}
	return body, true, nil
}

// Put stores an entry body, replacing any earlier version.
func (c *Cache) Put(commit, noteOID string, body []byte) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO entries (commit_sha, note_oid, body) VALUES (?, ?, ?)`,
		commit, noteOID, body)
	return err
}

// Len returns the number of cached entries.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}

// Reset empties the cache.
func (c *Cache) Reset() error {
	_, err := c.db.Exec(`DELETE FROM entries`)
	return err
}
