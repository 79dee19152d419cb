package git

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohankatakam/migtrack/internal/temporal"
)

// HistoryReader answers read-only questions about commit history. It never
// touches the working tree.
type HistoryReader struct {
	runner  *Runner
	timeout time.Duration
}

// NewHistoryReader creates a HistoryReader. timeout bounds each git query.
func NewHistoryReader(runner *Runner, timeout time.Duration) *HistoryReader {
	if timeout <= 0 {
		timeout = DefaultTimeouts().Query
	}
	return &HistoryReader{runner: runner, timeout: timeout}
}

// ListCommits returns every commit reachable from HEAD, oldest first.
//
// Output is streamed line by line so histories with tens of thousands of
// commits are never truncated by a fixed buffer.
func (h *HistoryReader) ListCommits(ctx context.Context) ([]temporal.Commit, error) {
	var commits []temporal.Commit

	err := h.runner.Stream(ctx, h.timeout, func(line string) error {
		c, err := temporal.ParseCommitLine(line)
		if err != nil {
			return err
		}
		commits = append(commits, c)
		return nil
	}, "log", "--reverse", "--format="+temporal.LogFormat, "HEAD")
	if err != nil {
		return nil, err
	}

	return commits, nil
}

// FindFirstAppearance returns the earliest commit, in history order, that
// added a file at or under relativePath. found is false when the path was
// never added; a later deletion does not matter.
func (h *HistoryReader) FindFirstAppearance(ctx context.Context, relativePath string) (commit temporal.Commit, found bool, err error) {
	pathspec := NormalizePath(relativePath)
	if pathspec == "" {
		return temporal.Commit{}, false, fmt.Errorf("empty path")
	}

	err = h.runner.Stream(ctx, h.timeout, func(line string) error {
		if found {
			return nil
		}
		c, perr := temporal.ParseCommitLine(line)
		if perr != nil {
			return perr
		}
		commit, found = c, true
		return nil
	}, "log", "--reverse", "--format="+temporal.LogFormat, "--diff-filter=A", "--", pathspec)
	if err != nil {
		return temporal.Commit{}, false, err
	}

	return commit, found, nil
}

// NormalizePath turns a user-supplied repository-relative path into the
// slash-separated form git expects ("./src/old/" -> "src/old").
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}
