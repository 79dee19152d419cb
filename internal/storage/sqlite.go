package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/sirupsen/logrus"
)

// SQLiteLedger stores runs in a local SQLite file. It is the default.
type SQLiteLedger struct {
	sqlLedger
	path string
}

// NewSQLiteLedger opens or creates the ledger at path.
func NewSQLiteLedger(path string, logger logrus.FieldLogger) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.StorageError(err, "create database directory")
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError(err, "connect to sqlite")
	}

	// A single writer per run; WAL keeps `migtrack runs` readable meanwhile.
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA busy_timeout = 5000")

	store := &SQLiteLedger{
		sqlLedger: sqlLedger{db: db, logger: logger},
		path:      path,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "init sqlite schema")
	}

	return store, nil
}

// Path returns the database file.
func (s *SQLiteLedger) Path() string {
	return s.path
}

func (s *SQLiteLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		old_path TEXT NOT NULL,
		new_path TEXT NOT NULL,
		output TEXT NOT NULL,
		force INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		migration_start TEXT NOT NULL DEFAULT '',
		days_measured INTEGER NOT NULL DEFAULT 0,
		series_length INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
