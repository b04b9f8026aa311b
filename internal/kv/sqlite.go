package kv

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store persisted in a local SQLite database. It replaces the
// browser localStorage the web client uses for the same cache entries.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the store at path and initializes the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the table if it doesn't exist.
func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			modified TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the value for key, with ok=false when absent.
func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM cache_entries WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value, overwriting any previous one.
func (s *SQLite) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO cache_entries (key, value, modified) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified",
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *SQLite) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Verify interface compliance at compile time
var _ Store = (*SQLite)(nil)
