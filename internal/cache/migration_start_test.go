package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	commits map[string]bool
	err     error
}

func (f fakeRepo) CommitExists(_ context.Context, hash string) (bool, error) {
	return f.commits[hash], f.err
}

const startHash = "0b9a1f3c5d7e9a1b3c5d7f9a1b3c5d7e9f1a3b5c"

func sampleRecord() Record {
	start := temporal.Commit{Hash: startHash, Timestamp: 1704153600}
	return NewRecord(start, "src/old", "src/new", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
}

func newCache(t *testing.T) (*MigrationStartCache, *test.Hook) {
	logger, hook := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "data", DefaultFileName)
	return NewMigrationStartCache(path, logger), hook
}

func warnings(hook *test.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c, hook := newCache(t)
	rec := sampleRecord()

	c.Save(rec)
	loaded, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, rec, loaded)
	assert.Equal(t, temporal.Commit{Hash: startHash, Timestamp: 1704153600}, loaded.Commit())
	assert.Empty(t, warnings(hook))
}

func TestLoadMissingIsSilentMiss(t *testing.T) {
	c, hook := newCache(t)

	_, ok := c.Load()
	assert.False(t, ok)
	assert.Empty(t, warnings(hook))
}

func TestLoadCorruptIsWarnedMiss(t *testing.T) {
	c, hook := newCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0755))
	require.NoError(t, os.WriteFile(c.Path(), []byte("{not json"), 0644))

	_, ok := c.Load()
	assert.False(t, ok)
	require.Len(t, warnings(hook), 1)
	assert.Contains(t, warnings(hook)[0], "failed to parse cache")
}

func TestLoadVersionMismatch(t *testing.T) {
	c, hook := newCache(t)
	rec := sampleRecord()
	rec.Version = SchemaVersion + 1
	c.Save(rec)

	_, ok := c.Load()
	assert.False(t, ok)
	require.Len(t, warnings(hook), 1)
	assert.Contains(t, warnings(hook)[0], "version mismatch")
}

func TestSaveFailureDoesNotPanicOrFail(t *testing.T) {
	logger, hook := test.NewNullLogger()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	// Parent of the cache path is a regular file, so the write must fail.
	c := NewMigrationStartCache(filepath.Join(blocker, "cache.json"), logger)
	c.Save(sampleRecord())

	require.Len(t, warnings(hook), 1)
	assert.Contains(t, warnings(hook)[0], "failed to save cache")
}

func TestValidate(t *testing.T) {
	c, _ := newCache(t)
	rec := sampleRecord()
	ctx := context.Background()
	present := fakeRepo{commits: map[string]bool{startHash: true}}

	assert.True(t, c.Validate(ctx, rec, present, "src/old", "src/new"))
	assert.False(t, c.Validate(ctx, rec, present, "src/legacy", "src/new"))
	assert.False(t, c.Validate(ctx, rec, present, "src/old", "src/next"))
	assert.False(t, c.Validate(ctx, rec, fakeRepo{}, "src/old", "src/new"), "rewritten history")
	assert.False(t, c.Validate(ctx, rec, fakeRepo{err: fmt.Errorf("git down")}, "src/old", "src/new"))
}

func TestClear(t *testing.T) {
	c, _ := newCache(t)
	c.Save(sampleRecord())
	require.FileExists(t, c.Path())

	require.NoError(t, c.Clear())
	assert.NoFileExists(t, c.Path())
	assert.NoError(t, c.Clear(), "clearing twice is fine")
}

func TestDefaultPaths(t *testing.T) {
	out := filepath.Join(t.TempDir(), "docs", "progress.json")
	assert.Equal(t, filepath.Join(filepath.Dir(out), ".migration-cache.json"), DefaultPath(out))
	assert.Equal(t, filepath.Join(filepath.Dir(out), ".migration-memo.db"), DefaultMemoPath(out))
	assert.True(t, filepath.IsAbs(DefaultPath("progress.json")))
}

func TestRecordJSONFieldNames(t *testing.T) {
	c, _ := newCache(t)
	c.Save(sampleRecord())

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	for _, field := range []string{"version", "migrationStartHash", "migrationStartTimestamp", "oldPath", "newPath", "createdAt"} {
		assert.True(t, strings.Contains(string(data), `"`+field+`"`), field)
	}
}
