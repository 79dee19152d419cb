package git

import (
	"context"
	"fmt"
	"testing"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	commits map[string]temporal.Commit
	err     error
}

func (f *fakeFinder) FindFirstAppearance(_ context.Context, p string) (temporal.Commit, bool, error) {
	if f.err != nil {
		return temporal.Commit{}, false, f.err
	}
	c, ok := f.commits[p]
	return c, ok, nil
}

func TestResolvePicksLaterAppearance(t *testing.T) {
	finder := &fakeFinder{commits: map[string]temporal.Commit{
		"src/old": {Hash: "aaa", Timestamp: 1000},
		"src/new": {Hash: "bbb", Timestamp: 2000},
	}}
	resolver := NewMigrationStartResolver(finder, quietLogger())

	start, err := resolver.Resolve(bg(), "src/old", "src/new")
	require.NoError(t, err)
	assert.Equal(t, temporal.Commit{Hash: "bbb", Timestamp: 2000}, start)

	// Order of the arguments does not matter for which commit is later.
	finder.commits["src/old"] = temporal.Commit{Hash: "ccc", Timestamp: 3000}
	start, err = resolver.Resolve(bg(), "src/old", "src/new")
	require.NoError(t, err)
	assert.Equal(t, "ccc", start.Hash)
}

func TestResolveTieFavoursOldPath(t *testing.T) {
	finder := &fakeFinder{commits: map[string]temporal.Commit{
		"old": {Hash: "old-hash", Timestamp: 5000},
		"new": {Hash: "new-hash", Timestamp: 5000},
	}}
	resolver := NewMigrationStartResolver(finder, quietLogger())

	start, err := resolver.Resolve(bg(), "old", "new")
	require.NoError(t, err)
	assert.Equal(t, "old-hash", start.Hash)
}

func TestResolveMissingPath(t *testing.T) {
	tests := []struct {
		name     string
		commits  map[string]temporal.Commit
		wantRole string
		wantPath string
	}{
		{
			name:     "old missing",
			commits:  map[string]temporal.Commit{"new": {Hash: "b", Timestamp: 1}},
			wantRole: "old",
			wantPath: "old",
		},
		{
			name:     "new missing",
			commits:  map[string]temporal.Commit{"old": {Hash: "a", Timestamp: 1}},
			wantRole: "new",
			wantPath: "new",
		},
		{
			name:     "both missing reports old",
			commits:  map[string]temporal.Commit{},
			wantRole: "old",
			wantPath: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewMigrationStartResolver(&fakeFinder{commits: tt.commits}, quietLogger())
			_, err := resolver.Resolve(bg(), "old", "new")
			require.Error(t, err)
			assert.True(t, errors.IsMigrationNotStarted(err))
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), fmt.Sprintf("%q", tt.wantPath))

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantRole, e.Context["role"])
		})
	}
}

func TestResolvePropagatesGitFailure(t *testing.T) {
	boom := fmt.Errorf("git exploded")
	resolver := NewMigrationStartResolver(&fakeFinder{err: boom}, quietLogger())

	_, err := resolver.Resolve(bg(), "old", "new")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.IsMigrationNotStarted(err))
}

func TestResolveAgainstRepository(t *testing.T) {
	repo := newTestRepo(t)

	repo.write("src/old/a.js", "a")
	repo.commit(ts("2024-01-01T10:00:00Z"), "old")
	repo.write("src/new/a.ts", "a")
	newHash := repo.commit(ts("2024-01-03T10:00:00Z"), "new")

	resolver := NewMigrationStartResolver(NewHistoryReader(repo.runner(), 0), quietLogger())
	start, err := resolver.Resolve(bg(), "src/old", "src/new")
	require.NoError(t, err)
	assert.Equal(t, newHash, start.Hash)
	assert.Equal(t, ts("2024-01-03T10:00:00Z").Unix(), start.Timestamp)
}
