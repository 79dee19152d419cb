package series

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(t int64, oldKB, newKB int64) DataPoint {
	return DataPoint{Time: t, OldSizeKB: oldKB, NewSizeKB: newKB, OldFiles: oldKB / 10, NewFiles: newKB / 10}
}

func testMeta(generatedAt string) Meta {
	return Meta{
		SourceRepo:  "git@github.com:acme/web.git",
		OldPath:     "src/old",
		NewPath:     "src/new",
		GeneratedAt: generatedAt,
		Version:     MetaVersion,
	}
}

func times(s Series) []int64 {
	out := make([]int64, len(s.Data))
	for i, p := range s.Data {
		out[i] = p.Time
	}
	return out
}

func TestMergeWithoutExisting(t *testing.T) {
	meta := testMeta("2024-01-03T00:00:00Z")
	got := Merge(nil, []DataPoint{point(300, 1, 1), point(100, 3, 0), point(200, 2, 1)}, meta, false)

	assert.Equal(t, []int64{100, 200, 300}, times(got))
	assert.Equal(t, meta, got.Meta)
}

func TestMergeAppendsOnlyLaterPoints(t *testing.T) {
	existing := &Series{
		Meta: testMeta("2024-01-01T00:00:00Z"),
		Data: []DataPoint{point(100, 50, 0), point(200, 40, 10)},
	}
	fresh := []DataPoint{point(150, 999, 999), point(200, 999, 999), point(400, 20, 30), point(300, 30, 20)}
	meta := testMeta("2024-01-05T00:00:00Z")

	got := Merge(existing, fresh, meta, false)

	assert.Equal(t, []int64{100, 200, 300, 400}, times(got))
	assert.Equal(t, int64(40), got.Data[1].OldSizeKB, "existing points are never recomputed")
	assert.Equal(t, "2024-01-05T00:00:00Z", got.Meta.GeneratedAt, "meta reflects the current run")
	assert.Len(t, existing.Data, 2, "existing series is not modified")
}

func TestMergeEmptyExisting(t *testing.T) {
	existing := &Series{Meta: testMeta("old"), Data: []DataPoint{}}
	got := Merge(existing, []DataPoint{point(5, 0, 0)}, testMeta("new"), false)
	assert.Equal(t, []int64{5}, times(got))
}

func TestForcedMergeDiscardsHistory(t *testing.T) {
	existing := &Series{
		Meta: testMeta("old"),
		Data: []DataPoint{point(100, 1, 1), point(900, 1, 1)},
	}
	fresh := []DataPoint{point(300, 2, 2), point(200, 3, 3)}

	got := Merge(existing, fresh, testMeta("new"), true)
	assert.Equal(t, []int64{200, 300}, times(got))

	got = Merge(existing, nil, testMeta("new"), true)
	assert.NotNil(t, got.Data)
	assert.Empty(t, got.Data)
}

func TestMergeIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 200; iter++ {
		var prior []DataPoint
		var last int64
		for i := 0; i < rng.Intn(5); i++ {
			last += int64(1 + rng.Intn(5))
			prior = append(prior, point(last*86400, int64(rng.Intn(100)), int64(rng.Intn(100))))
		}
		var fresh []DataPoint
		next := last
		for i := 0; i < rng.Intn(5); i++ {
			next += int64(1 + rng.Intn(5))
			fresh = append(fresh, point(next*86400, int64(rng.Intn(100)), int64(rng.Intn(100))))
		}
		rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })

		existing := &Series{Meta: testMeta("a"), Data: prior}
		meta := testMeta("b")

		once := Merge(existing, fresh, meta, false)
		twice := Merge(&once, nil, meta, false)
		assert.Equal(t, once, twice)

		again := Merge(&once, fresh, meta, false)
		assert.Equal(t, once, again, "re-merging the same points adds nothing")

		assert.True(t, sort.SliceIsSorted(once.Data, func(i, j int) bool { return once.Data[i].Time < once.Data[j].Time }))
		require.NoError(t, Validate(once))
	}
}

// Commits on 2024-01-01 00:00, 2024-01-01 20:00 and 2024-01-02 00:00 collapse
// to two days; with a prior series ending on 2024-01-01 only the second day
// is appended.
func TestMergeDailyScenario(t *testing.T) {
	days := temporal.AggregateByDay([]temporal.Commit{
		{Hash: "a", Timestamp: 1704067200},
		{Hash: "b", Timestamp: 1704139200},
		{Hash: "c", Timestamp: 1704153600},
	})
	require.Len(t, days, 2)

	var fresh []DataPoint
	for _, d := range days {
		start, err := d.DayStart()
		require.NoError(t, err)
		fresh = append(fresh, point(start, 10, 10))
	}

	existing := &Series{Meta: testMeta("a"), Data: []DataPoint{point(1704067200, 20, 0)}}
	got := Merge(existing, fresh, testMeta("b"), false)

	assert.Equal(t, []int64{1704067200, 1704153600}, times(got))
	assert.Equal(t, int64(20), got.Data[0].OldSizeKB)
}

func TestLastTime(t *testing.T) {
	var nilSeries *Series
	assert.Zero(t, nilSeries.LastTime())
	assert.Zero(t, nilSeries.Len())

	s := &Series{Data: []DataPoint{point(300, 0, 0), point(100, 0, 0)}}
	assert.Equal(t, int64(300), s.LastTime(), "maximum, not the final element")
	assert.Equal(t, 2, s.Len())
}
