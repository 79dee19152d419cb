// Package measure computes the size of a folder at the currently checked-out
// commit. It only reads file metadata and, in lines mode, file contents; it
// never writes to the tree.
package measure

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Mode selects what is counted.
type Mode string

const (
	// ModeSize counts bytes and files using stat only.
	ModeSize Mode = "size"
	// ModeLines additionally counts lines of text files.
	ModeLines Mode = "lines"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSize:
		return ModeSize, nil
	case ModeLines:
		return ModeLines, nil
	default:
		return "", fmt.Errorf("unknown measure mode %q (expected size|lines)", s)
	}
}

// Stats is the measurement of one folder.
type Stats struct {
	Bytes  int64 `json:"bytes"`
	SizeKB int64 `json:"sizeKB"`
	Files  int64 `json:"files"`
	Lines  int64 `json:"lines,omitempty"`
}

// String renders stats for log output.
func (s Stats) String() string {
	if s.Lines > 0 {
		return fmt.Sprintf("%s, %d files, %d lines", humanize.IBytes(uint64(s.Bytes)), s.Files, s.Lines)
	}
	return fmt.Sprintf("%s, %d files", humanize.IBytes(uint64(s.Bytes)), s.Files)
}

// Measurer measures folders in one mode.
type Measurer struct {
	mode         Mode
	maxTextBytes int64
}

// New creates a Measurer. In lines mode, files larger than maxTextBytes are
// counted for size but not read; zero means no limit.
func New(mode Mode, maxTextBytes int64) *Measurer {
	if mode == "" {
		mode = ModeSize
	}
	return &Measurer{mode: mode, maxTextBytes: maxTextBytes}
}

// ParseMaxTextSize parses a human size such as "10MB" or "512KiB".
func ParseMaxTextSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

// Mode returns the configured mode.
func (m *Measurer) Mode() Mode {
	return m.mode
}

// MaxTextBytes returns the lines-mode read limit, zero for none.
func (m *Measurer) MaxTextBytes() int64 {
	return m.maxTextBytes
}

// Measure walks dir. A missing path, or one that is not a directory, yields
// zero stats: the folder simply does not exist at that commit. Entries that
// cannot be read are skipped.
func (m *Measurer) Measure(dir string, ignore *Ignore) (Stats, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Stats{}, nil
	}

	var stats Stats
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}

		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignore.Skip(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Skip(rel, false) || !d.Type().IsRegular() {
			return nil
		}

		fi, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		stats.Bytes += fi.Size()
		stats.Files++

		if m.mode == ModeLines && (m.maxTextBytes == 0 || fi.Size() <= m.maxTextBytes) && IsTextFile(path) {
			if n, lerr := countFileLines(path); lerr == nil {
				stats.Lines += n
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats.SizeKB = roundKB(stats.Bytes)
	return stats, nil
}

// MeasureSize measures dir by byte size and file count.
func MeasureSize(dir string, ignored []string) (Stats, error) {
	ig, err := NewIgnore(ignored)
	if err != nil {
		return Stats{}, err
	}
	return New(ModeSize, 0).Measure(dir, ig)
}

// MeasureLines measures dir including text line counts.
func MeasureLines(dir string, ignored []string) (Stats, error) {
	ig, err := NewIgnore(ignored)
	if err != nil {
		return Stats{}, err
	}
	return New(ModeLines, 0).Measure(dir, ig)
}

func countFileLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return CountLines(f)
}

// roundKB rounds to the nearest KiB, halves up.
func roundKB(b int64) int64 {
	return (b + 512) / 1024
}
