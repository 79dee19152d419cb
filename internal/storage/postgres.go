package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/sirupsen/logrus"
)

// PostgresLedger stores runs in PostgreSQL, for teams sharing one history.
type PostgresLedger struct {
	sqlLedger
}

// NewPostgresLedger connects with dsn and ensures the schema exists.
func NewPostgresLedger(dsn string, logger logrus.FieldLogger) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres ledger dsn is empty")
	}

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, errors.StorageError(err, "connect to postgres")
	}

	// Configure connection pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresLedger{sqlLedger: sqlLedger{db: db, logger: logger}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "init postgres schema")
	}

	return store, nil
}

func (s *PostgresLedger) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		old_path TEXT NOT NULL,
		new_path TEXT NOT NULL,
		output TEXT NOT NULL,
		force BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		migration_start TEXT NOT NULL DEFAULT '',
		days_measured INTEGER NOT NULL DEFAULT 0,
		series_length INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
