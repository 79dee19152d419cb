package temporal

import (
	"fmt"
	"strconv"
	"strings"
)

// LogFormat is the git --format string whose lines ParseCommitLine accepts.
const LogFormat = "%H|%ct"

// ParseCommitLine parses one "<hash>|<unix seconds>" line of git log output.
func ParseCommitLine(line string) (Commit, error) {
	line = strings.TrimSpace(strings.Trim(line, `"`))

	hash, ts, ok := strings.Cut(line, "|")
	if !ok {
		return Commit{}, fmt.Errorf("malformed git log line %q", line)
	}
	if hash == "" {
		return Commit{}, fmt.Errorf("missing hash in git log line %q", line)
	}

	timestamp, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("bad timestamp in git log line %q: %w", line, err)
	}

	return Commit{Hash: hash, Timestamp: timestamp}, nil
}

// FilterSince keeps the commits at or after the given unix timestamp,
// preserving order.
func FilterSince(commits []Commit, since int64) []Commit {
	result := make([]Commit, 0, len(commits))
	for _, c := range commits {
		if c.Timestamp >= since {
			result = append(result, c)
		}
	}
	return result
}
