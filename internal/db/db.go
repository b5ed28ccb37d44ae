// Package db stores saved scenario views and the render log in SQLite.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/scenario.board/internal/monitoring"
)

type DB struct {
	*sql.DB
	path string
}

// pragmas are applied to every connection opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database and applies the pragmas without touching the
// schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the per-connection pragmas in force.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("[db] opened %s at schema version %d", path, version)
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}
