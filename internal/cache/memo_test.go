package cache

import (
	"path/filepath"
	"testing"

	"github.com/rohankatakam/migtrack/internal/measure"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemo(t *testing.T) *Memo {
	t.Helper()
	logger, _ := test.NewNullLogger()
	m, err := OpenMemo(filepath.Join(t.TempDir(), "memo", DefaultMemoFileName), logger)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMemoPutGet(t *testing.T) {
	m := openMemo(t)
	key := MemoKey{Commit: "abc", Path: "src/old", Ignored: []string{"b", "a"}, Mode: measure.ModeSize}
	stats := measure.Stats{Bytes: 4096, SizeKB: 4, Files: 2}

	_, ok := m.Get(key)
	assert.False(t, ok)

	m.Put(key, stats)
	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, stats, got)
	assert.Equal(t, 1, m.Len())

	// Ignore order does not matter.
	reordered := key
	reordered.Ignored = []string{"a", "b"}
	_, ok = m.Get(reordered)
	assert.True(t, ok)
}

func TestMemoKeysAreDistinct(t *testing.T) {
	m := openMemo(t)
	base := MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeSize}
	m.Put(base, measure.Stats{Files: 1})

	variants := []MemoKey{
		{Commit: "abd", Path: "src/old", Mode: measure.ModeSize},
		{Commit: "abc", Path: "src/new", Mode: measure.ModeSize},
		{Commit: "abc", Path: "src/old", Mode: measure.ModeLines},
		{Commit: "abc", Path: "src/old", Mode: measure.ModeSize, Ignored: []string{"x"}},
	}
	for _, k := range variants {
		_, ok := m.Get(k)
		assert.False(t, ok, "%+v", k)
	}
}

func TestMemoKeyTextLimit(t *testing.T) {
	m := openMemo(t)

	lines := MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeLines, MaxTextBytes: 10 << 20}
	m.Put(lines, measure.Stats{Files: 3, Lines: 120})

	_, ok := m.Get(MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeLines, MaxTextBytes: 1 << 20})
	assert.False(t, ok, "a different text limit changes line counts")

	got, ok := m.Get(lines)
	require.True(t, ok)
	assert.Equal(t, int64(120), got.Lines)

	size := MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeSize, MaxTextBytes: 10 << 20}
	m.Put(size, measure.Stats{Files: 3})
	_, ok = m.Get(MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeSize})
	assert.True(t, ok, "size mode ignores the text limit")
}

func TestMemoClearAndReopen(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "memo.db")

	m, err := OpenMemo(path, logger)
	require.NoError(t, err)
	key := MemoKey{Commit: "abc", Path: "src/old", Mode: measure.ModeSize}
	m.Put(key, measure.Stats{Files: 7})
	require.NoError(t, m.Close())

	m, err = OpenMemo(path, logger)
	require.NoError(t, err)
	defer m.Close()

	got, ok := m.Get(key)
	require.True(t, ok, "entries survive reopening")
	assert.Equal(t, int64(7), got.Files)

	require.NoError(t, m.Clear())
	assert.Equal(t, 0, m.Len())
	_, ok = m.Get(key)
	assert.False(t, ok)
}

func TestNilMemo(t *testing.T) {
	var m *Memo
	key := MemoKey{Commit: "abc"}

	m.Put(key, measure.Stats{Files: 1})
	_, ok := m.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.NoError(t, m.Clear())
	assert.NoError(t, m.Close())
	assert.Empty(t, m.Path())
}
