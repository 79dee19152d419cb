package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteLedger {
	t.Helper()
	logger, _ := test.NewNullLogger()
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "state", "ledger.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newSQLite(t)

	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	run := &Run{
		ID:        "run-1",
		Repo:      "/srv/web",
		OldPath:   "src/old",
		NewPath:   "src/new",
		Output:    "/srv/site/progress.json",
		Force:     true,
		StartedAt: started,
	}
	require.NoError(t, l.StartRun(ctx, run))
	assert.Equal(t, RunRunning, run.Status)

	got, err := l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.Status)
	assert.True(t, got.Force)
	assert.False(t, got.FinishedAt.Valid)
	assert.Zero(t, got.Duration())
	assert.WithinDuration(t, started, got.StartedAt, time.Second)

	run.Status = RunSucceeded
	run.FinishedAt = sql.NullTime{Time: started.Add(90 * time.Second), Valid: true}
	run.MigrationStart = "abc123"
	run.DaysMeasured = 12
	run.SeriesLength = 40
	require.NoError(t, l.FinishRun(ctx, run))

	got, err = l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, got.Status)
	assert.Equal(t, "abc123", got.MigrationStart)
	assert.Equal(t, 12, got.DaysMeasured)
	assert.Equal(t, 40, got.SeriesLength)
	require.True(t, got.FinishedAt.Valid)
	assert.Equal(t, 90*time.Second, got.Duration())
}

func TestGetRunNotFound(t *testing.T) {
	l := newSQLite(t)
	_, err := l.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishUnknownRun(t *testing.T) {
	l := newSQLite(t)
	err := l.FinishRun(context.Background(), &Run{ID: "ghost", Status: RunFailed})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.False(t, errors.IsFatal(err))
}

func TestLedgerErrorsAreStorageErrors(t *testing.T) {
	l := newSQLite(t)
	run := &Run{ID: "dup", Repo: "/r", OldPath: "a", NewPath: "b", Output: "/o.json", StartedAt: time.Now()}
	require.NoError(t, l.StartRun(context.Background(), run))

	err := l.StartRun(context.Background(), run)
	require.Error(t, err, "primary key violation")
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.Contains(t, err.Error(), "start run")

	require.NoError(t, l.Close())
	_, err = l.ListRuns(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := newSQLite(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.StartRun(ctx, &Run{
			ID:        fmt.Sprintf("run-%d", i),
			Repo:      "/srv/web",
			OldPath:   "a",
			NewPath:   "b",
			Output:    "out.json",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := l.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := NewSQLiteLedger(path, logger)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(ctx, &Run{ID: "r", Repo: "x", OldPath: "a", NewPath: "b", Output: "o", StartedAt: time.Now().UTC()}))
	require.NoError(t, l.Close())

	l, err = NewSQLiteLedger(path, logger)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, path, l.Path())

	_, err = l.GetRun(ctx, "r")
	assert.NoError(t, err)
}

func TestOpen(t *testing.T) {
	logger, _ := test.NewNullLogger()

	l, err := Open(Config{Type: "none"}, logger)
	require.NoError(t, err)
	assert.IsType(t, NopLedger{}, l)
	runs, err := l.ListRuns(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, runs)

	l, err = Open(Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "l.db")}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteLedger{}, l)
	require.NoError(t, l.Close())

	_, err = Open(Config{Type: "mongo"}, logger)
	assert.Error(t, err)

	_, err = Open(Config{Type: "postgres"}, logger)
	assert.Error(t, err, "empty dsn")
}

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("MIGTRACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping integration test: MIGTRACK_TEST_POSTGRES_DSN not set")
	}

	logger, _ := test.NewNullLogger()
	l, err := NewPostgresLedger(dsn, logger)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	id := fmt.Sprintf("test-%d", time.Now().UnixNano())
	run := &Run{ID: id, Repo: "r", OldPath: "a", NewPath: "b", Output: "o", StartedAt: time.Now().UTC()}
	require.NoError(t, l.StartRun(ctx, run))

	run.Status = RunFailed
	run.Error = "boom"
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	require.NoError(t, l.FinishRun(ctx, run))

	got, err := l.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
