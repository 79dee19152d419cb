package temporal

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateByDay_Scenario(t *testing.T) {
	commits := []Commit{
		{Hash: "a", Timestamp: 1704067200}, // 2024-01-01T00:00:00Z
		{Hash: "b", Timestamp: 1704139200}, // 2024-01-01T20:00:00Z
		{Hash: "c", Timestamp: 1704153600}, // 2024-01-02T00:00:00Z
	}

	days := AggregateByDay(commits)

	assert.Equal(t, []DailyCommit{
		{Date: "2024-01-01", Hash: "b", Timestamp: 1704139200},
		{Date: "2024-01-02", Hash: "c", Timestamp: 1704153600},
	}, days)
}

func TestAggregateByDay_Empty(t *testing.T) {
	assert.Empty(t, AggregateByDay(nil))
}

func TestAggregateByDay_UnsortedInput(t *testing.T) {
	commits := []Commit{
		{Hash: "late", Timestamp: 1704153600 + 3600},
		{Hash: "b", Timestamp: 1704139200},
		{Hash: "early", Timestamp: 1704153600},
		{Hash: "a", Timestamp: 1704067200},
	}

	days := AggregateByDay(commits)

	require.Len(t, days, 2)
	assert.Equal(t, "b", days[0].Hash)
	assert.Equal(t, "late", days[1].Hash)
}

func TestAggregateByDay_UTCBoundary(t *testing.T) {
	commits := []Commit{
		{Hash: "last-second", Timestamp: 1704153599}, // 2024-01-01T23:59:59Z
		{Hash: "midnight", Timestamp: 1704153600},    // 2024-01-02T00:00:00Z
	}

	days := AggregateByDay(commits)

	require.Len(t, days, 2)
	assert.Equal(t, "2024-01-01", days[0].Date)
	assert.Equal(t, "last-second", days[0].Hash)
	assert.Equal(t, "2024-01-02", days[1].Date)
}

func TestAggregateByDay_OnePerDistinctDate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := int64(1704067200)

	commits := make([]Commit, 500)
	for i := range commits {
		commits[i] = Commit{Hash: string(rune('a' + i%26)), Timestamp: base + rng.Int63n(90*86400)}
	}

	maxByDate := map[string]int64{}
	for _, c := range commits {
		d := UTCDate(c.Timestamp)
		if c.Timestamp > maxByDate[d] {
			maxByDate[d] = c.Timestamp
		}
	}

	days := AggregateByDay(commits)

	assert.Len(t, days, len(maxByDate))
	for i, d := range days {
		assert.Equal(t, maxByDate[d.Date], d.Timestamp, d.Date)
		if i > 0 {
			assert.Less(t, days[i-1].Date, d.Date)
		}
	}
}

func TestDaysAfter(t *testing.T) {
	days := AggregateByDay([]Commit{
		{Hash: "a", Timestamp: 1704067200},
		{Hash: "b", Timestamp: 1704139200},
		{Hash: "c", Timestamp: 1704153600},
	})

	fresh := DaysAfter(days, 1704067200)

	require.Len(t, fresh, 1)
	assert.Equal(t, "2024-01-02", fresh[0].Date)
	assert.Len(t, DaysAfter(days, 0), 2)
}

func TestDayStart(t *testing.T) {
	start, err := DailyCommit{Date: "2024-01-02"}.DayStart()
	require.NoError(t, err)
	assert.Equal(t, int64(1704153600), start)
	assert.Equal(t, int64(1704067200), DayStartOf(1704139200))

	_, err = DailyCommit{Date: "01/02/2024"}.DayStart()
	assert.Error(t, err)
}

func TestParseCommitLine(t *testing.T) {
	c, err := ParseCommitLine("0123456789abcdef0123456789abcdef01234567|1704067200")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", c.Hash)
	assert.Equal(t, int64(1704067200), c.Timestamp)
	assert.Equal(t, "0123456", c.ShortHash())

	quoted, err := ParseCommitLine(`"abc|1704067200"`)
	require.NoError(t, err)
	assert.Equal(t, "abc", quoted.Hash)

	for _, bad := range []string{"", "abc", "|123", "abc|soon"} {
		_, err := ParseCommitLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilterSince(t *testing.T) {
	commits := []Commit{{Hash: "a", Timestamp: 10}, {Hash: "b", Timestamp: 20}, {Hash: "c", Timestamp: 30}}

	assert.Equal(t, []Commit{{Hash: "b", Timestamp: 20}, {Hash: "c", Timestamp: 30}}, FilterSince(commits, 20))
}
