// Package storage records the history of tracker runs in a small ledger.
// The ledger is informational: the tracker logs ledger failures and carries
// on.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one invocation of the tracker.
type Run struct {
	ID             string       `db:"id"`
	Repo           string       `db:"repo"`
	OldPath        string       `db:"old_path"`
	NewPath        string       `db:"new_path"`
	Output         string       `db:"output"`
	Force          bool         `db:"force"`
	Status         RunStatus    `db:"status"`
	StartedAt      time.Time    `db:"started_at"`
	FinishedAt     sql.NullTime `db:"finished_at"`
	MigrationStart string       `db:"migration_start"`
	DaysMeasured   int          `db:"days_measured"`
	SeriesLength   int          `db:"series_length"`
	Error          string       `db:"error"`
}

// Duration returns how long a finished run took, or zero.
func (r *Run) Duration() time.Duration {
	if !r.FinishedAt.Valid {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt)
}

// Ledger stores runs.
type Ledger interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}

// Config selects and locates the ledger backend.
type Config struct {
	Type string // sqlite, postgres or none
	Path string // sqlite database file
	DSN  string // postgres connection string
}

// Open returns the configured ledger.
func Open(cfg Config, logger logrus.FieldLogger) (Ledger, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		return NewSQLiteLedger(cfg.Path, logger)
	case "postgres", "postgresql":
		return NewPostgresLedger(cfg.DSN, logger)
	case "none":
		return NopLedger{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger type %q (expected sqlite|postgres|none)", cfg.Type)
	}
}

// NopLedger discards everything.
type NopLedger struct{}

func (NopLedger) StartRun(context.Context, *Run) error  { return nil }
func (NopLedger) FinishRun(context.Context, *Run) error { return nil }
func (NopLedger) GetRun(context.Context, string) (*Run, error) {
	return nil, ErrNotFound
}
func (NopLedger) ListRuns(context.Context, int) ([]*Run, error) { return nil, nil }
func (NopLedger) Close() error                                  { return nil }
