// Package meterdb records decoded snapshots into SQLite.
// Only the daemon writes; any process may read.
package meterdb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Recorder struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string, logger *zap.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, err
	}

	rec := NewRecorder(db, logger)
	rec.migrate()
	return rec, nil
}

// NewRecorder wraps an open database whose schema is already in place.
func NewRecorder(db *sql.DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, log: logger.Named("meterdb")}
}

func (r *Recorder) migrate() {
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		r.db,
		migrationFS,
		"migrations",
	)
	r.log.Debug("migrations applied")
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
