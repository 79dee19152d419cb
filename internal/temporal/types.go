package temporal

import "time"

// DateLayout is the UTC calendar day format used for DailyCommit.Date.
const DateLayout = "2006-01-02"

// Commit is a commit as read from repository history. Values are never
// constructed synthetically outside of tests.
type Commit struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"` // unix seconds (committer date)
}

// Time returns the commit timestamp as a UTC time.
func (c Commit) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// ShortHash returns the abbreviated hash used in log output.
func (c Commit) ShortHash() string {
	return Short(c.Hash)
}

// DailyCommit is the representative commit of one UTC calendar day: the
// latest commit whose timestamp falls on Date.
type DailyCommit struct {
	Date      string `json:"date"` // YYYY-MM-DD, UTC
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// DayStart returns the unix timestamp of UTC midnight for Date.
func (d DailyCommit) DayStart() (int64, error) {
	t, err := time.ParseInLocation(DateLayout, d.Date, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// Short abbreviates a hash to 7 characters.
func Short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// UTCDate returns the YYYY-MM-DD UTC date for a unix timestamp.
func UTCDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(DateLayout)
}

// DayStartOf truncates a unix timestamp to UTC midnight.
func DayStartOf(unix int64) int64 {
	return unix - mod(unix, secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
