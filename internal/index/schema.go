// Package index provides the per-root SQLite file-metadata index and the
// registry of open index handles.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is embedded in the database file name so incompatible
// layouts never share a file.
const SchemaVersion = 1

// DBFileName returns the index database file name for the current schema.
func DBFileName() string {
	return "thumbnail-v" + strconv.Itoa(SchemaVersion) + ".db"
}

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS thumbnail (
	id         INTEGER PRIMARY KEY,
	fullName   TEXT    NOT NULL,
	type       TEXT    NOT NULL CHECK (type IN ('file', 'dir')),
	statHash   TEXT    NOT NULL,
	updateTime INTEGER NOT NULL,
	stat       TEXT    NOT NULL DEFAULT '{}',
	size       INTEGER NOT NULL DEFAULT -1,
	ctime      INTEGER NOT NULL DEFAULT -1,
	atime      INTEGER NOT NULL DEFAULT -1,
	mtime      INTEGER NOT NULL DEFAULT -1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_thumbnail_fullName ON thumbnail(fullName);
CREATE UNIQUE INDEX IF NOT EXISTS idx_thumbnail_fullName_statHash ON thumbnail(fullName, statHash);
CREATE INDEX IF NOT EXISTS idx_thumbnail_type ON thumbnail(type);
CREATE INDEX IF NOT EXISTS idx_thumbnail_mtime ON thumbnail(mtime);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// openDB opens the database file at path. Read-only connections never
// create the file, so a missing database fails here.
func openDB(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := fileURI(path) + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"
	if readOnly {
		dsn = fileURI(path) + "?mode=ro&_busy_timeout=5000"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	return conn, nil
}

// fileURI escapes the characters SQLite treats specially in a URI path.
func fileURI(path string) string {
	return "file:" + uriEscaper.Replace(filepath.ToSlash(path))
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// ensureSchema creates the table, indexes, full-text shadow index and its
// sync triggers. It is idempotent.
func ensureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, coreSchemaSQL); err != nil {
		return fmt.Errorf("index: apply core schema: %w", err)
	}
	if _, err := conn.ExecContext(ctx, ftsSchemaSQL); err != nil {
		return fmt.Errorf("index: apply fts schema: %w", err)
	}
	_, err := conn.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(SchemaVersion))
	if err != nil {
		return fmt.Errorf("index: set schema version: %w", err)
	}
	return nil
}
