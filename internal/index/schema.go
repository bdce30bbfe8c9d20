// Package index provides a SQLite-backed snapshot cache of the document graph.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is stored in the meta table; a cache written by another
// version is ignored.
const SchemaVersion = "1"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS nodes (
	seq      INTEGER NOT NULL,
	id       TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	type     TEXT NOT NULL DEFAULT '',
	uri      TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL UNIQUE,
	title    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS edges (
	pos      INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	source   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	target   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	ref_type TEXT NOT NULL DEFAULT '',
	UNIQUE(kind, source, target, ref_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
