package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommits(t *testing.T) {
	repo := newTestRepo(t)

	repo.write("README.md", "hello")
	first := repo.commit(ts("2024-01-01T10:00:00Z"), "initial")
	repo.write("src/old/a.js", "a")
	second := repo.commit(ts("2024-01-02T10:00:00Z"), "add old")
	repo.write("src/new/a.ts", "a")
	third := repo.commit(ts("2024-01-03T10:00:00Z"), "add new")

	reader := NewHistoryReader(repo.runner(), 0)
	commits, err := reader.ListCommits(bg())
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, first, commits[0].Hash)
	assert.Equal(t, second, commits[1].Hash)
	assert.Equal(t, third, commits[2].Hash)
	assert.Equal(t, ts("2024-01-01T10:00:00Z").Unix(), commits[0].Timestamp)
	assert.Equal(t, ts("2024-01-03T10:00:00Z").Unix(), commits[2].Timestamp)
}

func TestListCommitsEmptyRepository(t *testing.T) {
	repo := newTestRepo(t)

	reader := NewHistoryReader(repo.runner(), 0)
	_, err := reader.ListCommits(bg())
	assert.Error(t, err, "HEAD does not resolve before the first commit")
}

func TestFindFirstAppearance(t *testing.T) {
	repo := newTestRepo(t)

	repo.write("README.md", "hello")
	repo.commit(ts("2024-01-01T10:00:00Z"), "initial")
	repo.write("src/old/deep/a.js", "a")
	added := repo.commit(ts("2024-01-02T10:00:00Z"), "add old")
	repo.write("src/old/b.js", "b")
	repo.commit(ts("2024-01-03T10:00:00Z"), "more old")

	reader := NewHistoryReader(repo.runner(), 0)

	t.Run("directory", func(t *testing.T) {
		c, found, err := reader.FindFirstAppearance(bg(), "src/old")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, added, c.Hash)
		assert.Equal(t, ts("2024-01-02T10:00:00Z").Unix(), c.Timestamp)
	})

	t.Run("dot-prefixed with trailing slash", func(t *testing.T) {
		c, found, err := reader.FindFirstAppearance(bg(), "./src/old/")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, added, c.Hash)
	})

	t.Run("never added", func(t *testing.T) {
		_, found, err := reader.FindFirstAppearance(bg(), "src/missing")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("empty path", func(t *testing.T) {
		_, _, err := reader.FindFirstAppearance(bg(), "  ")
		assert.Error(t, err)
	})
}

func TestFindFirstAppearanceAfterDeletion(t *testing.T) {
	repo := newTestRepo(t)

	repo.write("legacy/x.txt", "x")
	added := repo.commit(ts("2024-02-01T00:00:00Z"), "add legacy")
	repo.remove("legacy")
	repo.write("other.txt", "o")
	repo.commit(ts("2024-02-05T00:00:00Z"), "drop legacy")

	reader := NewHistoryReader(repo.runner(), 0)
	c, found, err := reader.FindFirstAppearance(bg(), "legacy")
	require.NoError(t, err)
	require.True(t, found, "a path deleted later still has a first appearance")
	assert.Equal(t, added, c.Hash)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"src/old":      "src/old",
		"./src/old/":   "src/old",
		"/src/old":     "src/old",
		"src//old/../": "src",
		".":            "",
		"":             "",
		"  lib ":       "lib",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}
