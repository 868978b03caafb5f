package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// AUTOINCREMENT keeps ids of deleted items from being handed out again.
// created_at is fixed-width UTC text so that ordering by it is chronological.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    title          TEXT NOT NULL CHECK (title <> ''),
    price          REAL NOT NULL CHECK (price >= 0),
    category       TEXT NOT NULL CHECK (category IN ('mice', 'mousepads')),
    image_filename TEXT,
    sold           INTEGER NOT NULL DEFAULT 0 CHECK (sold IN (0, 1)),
    created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
