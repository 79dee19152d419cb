// Package series holds the persisted migration progress time series: its
// shape, how new measurements are merged in, the validation gate in front of
// the disk, and the atomic file store.
package series

// MetaVersion is written to meta.version by this tool.
const MetaVersion = 2

// DataPoint is one day's measurement of both tracked folders.
type DataPoint struct {
	Time      int64  `json:"time"` // unix seconds, UTC midnight of the measured day
	OldSizeKB int64  `json:"oldSizeKB"`
	NewSizeKB int64  `json:"newSizeKB"`
	OldFiles  int64  `json:"oldFiles"`
	NewFiles  int64  `json:"newFiles"`
	OldLines  *int64 `json:"oldLines,omitempty"`
	NewLines  *int64 `json:"newLines,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// IgnoredSubfolders records the ignore rules a series was measured with.
type IgnoredSubfolders struct {
	Old []string `json:"old,omitempty"`
	New []string `json:"new,omitempty"`
}

// UI carries labels for the chart page.
type UI struct {
	Title          string `json:"title"`
	OldLabel       string `json:"oldLabel"`
	NewLabel       string `json:"newLabel"`
	OldDescription string `json:"oldDescription"`
	NewDescription string `json:"newDescription"`
}

// Meta describes how and when a series was produced.
type Meta struct {
	SourceRepo        string             `json:"sourceRepo"`
	OldPath           string             `json:"oldPath"`
	NewPath           string             `json:"newPath"`
	GeneratedAt       string             `json:"generatedAt"` // RFC 3339
	Version           int                `json:"version,omitempty"`
	IgnoredSubfolders *IgnoredSubfolders `json:"ignoredSubfolders,omitempty"`
	UI                *UI                `json:"ui,omitempty"`
}

// Series is the document written to the output file.
type Series struct {
	Meta Meta        `json:"meta"`
	Data []DataPoint `json:"data"`
}

// LastTime returns the greatest point time, or 0 for a nil or empty series.
func (s *Series) LastTime() int64 {
	if s == nil {
		return 0
	}
	var last int64
	for _, p := range s.Data {
		if p.Time > last {
			last = p.Time
		}
	}
	return last
}

// Len returns the number of points, treating nil as empty.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Data)
}

// Int64 returns a pointer to v, for the optional line counts.
func Int64(v int64) *int64 {
	return &v
}
