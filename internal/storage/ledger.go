package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/sirupsen/logrus"
)

// sqlLedger holds the queries shared by both backends. Named parameters are
// rebound by sqlx for each driver's placeholder style.
type sqlLedger struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
}

const runColumns = `id, repo, old_path, new_path, output, force, status, started_at,
	finished_at, migration_start, days_measured, series_length, error`

func (s *sqlLedger) StartRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunRunning
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (:id, :repo, :old_path, :new_path, :output, :force, :status, :started_at,
			:finished_at, :migration_start, :days_measured, :series_length, :error)
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return errors.StorageError(err, "start run").WithContext("run_id", run.ID)
	}

	s.logger.WithField("run_id", run.ID).Debug("recorded run start")
	return nil
}

func (s *sqlLedger) FinishRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs SET
			status = :status,
			finished_at = :finished_at,
			migration_start = :migration_start,
			days_measured = :days_measured,
			series_length = :series_length,
			error = :error
		WHERE id = :id
	`
	res, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return errors.StorageError(err, "finish run").WithContext("run_id", run.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.StorageError(ErrNotFound, fmt.Sprintf("finish run %s", run.ID))
	}
	return nil
}

func (s *sqlLedger) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := s.db.Rebind(`SELECT ` + runColumns + ` FROM runs WHERE id = ?`)

	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.StorageError(err, "get run")
	}
	return &run, nil
}

func (s *sqlLedger) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []*Run
	query := s.db.Rebind(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, errors.StorageError(err, "list runs")
	}
	return runs, nil
}

// Close closes the database connection
func (s *sqlLedger) Close() error {
	return s.db.Close()
}
