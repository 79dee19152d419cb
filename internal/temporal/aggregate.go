package temporal

import "sort"

// AggregateByDay collapses commits into one DailyCommit per UTC calendar
// day, keeping the commit with the greatest timestamp of each day. The
// result is sorted by date ascending. Input order does not matter.
func AggregateByDay(commits []Commit) []DailyCommit {
	latest := make(map[string]Commit, len(commits))

	for _, c := range commits {
		date := UTCDate(c.Timestamp)
		existing, ok := latest[date]
		if !ok || c.Timestamp > existing.Timestamp {
			latest[date] = c
		}
	}

	result := make([]DailyCommit, 0, len(latest))
	for date, c := range latest {
		result = append(result, DailyCommit{
			Date:      date,
			Hash:      c.Hash,
			Timestamp: c.Timestamp,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})

	return result
}

// DaysAfter returns the daily commits whose UTC-midnight timestamp is
// strictly greater than lastTime. lastTime 0 keeps everything.
func DaysAfter(days []DailyCommit, lastTime int64) []DailyCommit {
	result := make([]DailyCommit, 0, len(days))
	for _, d := range days {
		start, err := d.DayStart()
		if err != nil {
			continue
		}
		if start > lastTime {
			result = append(result, d)
		}
	}
	return result
}
