// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sqlitedb opens the SQLite database shared by the durable phase
// cache and the phase timing recorder.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	indexDir = "index"
	dbFile   = "dossier.db"
)

// Path returns the database location under baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, indexDir, dbFile)
}

// Open opens or creates the database at baseDir/index/dossier.db in WAL
// mode. A single connection serializes writers so concurrent phases never
// see SQLITE_BUSY.
func Open(baseDir string) (*sql.DB, error) {
	dbPath := Path(baseDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}
	return db, nil
}

// Exec runs each schema statement in order.
func Exec(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
