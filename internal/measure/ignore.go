package measure

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// builtinIgnored are skipped at any depth, whatever the caller configures.
var builtinIgnored = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".DS_Store":    true,
}

// Ignore decides which entries under a measured folder are left out.
//
// A plain pattern matches a subfolder by name at any depth ("fixtures") or
// by its path relative to the measured folder ("legacy/vendor"). A pattern
// containing glob syntax is matched with doublestar against the relative
// path of both folders and files ("**/*.snap", "gen/**").
type Ignore struct {
	names    map[string]bool
	relPaths map[string]bool
	globs    []string
	raw      []string
}

// NewIgnore compiles patterns. Empty entries are dropped; an invalid glob is
// an error naming the pattern.
func NewIgnore(patterns []string) (*Ignore, error) {
	ig := &Ignore{
		names:    make(map[string]bool),
		relPaths: make(map[string]bool),
	}

	for _, p := range patterns {
		p = normalizePattern(p)
		if p == "" {
			continue
		}
		ig.raw = append(ig.raw, p)

		if isGlob(p) {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("invalid ignore pattern %q", p)
			}
			ig.globs = append(ig.globs, p)
			continue
		}
		if strings.Contains(p, "/") {
			ig.relPaths[p] = true
		} else {
			ig.names[p] = true
		}
	}

	return ig, nil
}

// MustIgnore is NewIgnore for patterns known to be valid.
func MustIgnore(patterns ...string) *Ignore {
	ig, err := NewIgnore(patterns)
	if err != nil {
		panic(err)
	}
	return ig
}

// Patterns returns the normalized patterns in their original order.
func (ig *Ignore) Patterns() []string {
	if ig == nil {
		return nil
	}
	return append([]string(nil), ig.raw...)
}

// Empty reports whether no caller-supplied pattern is set.
func (ig *Ignore) Empty() bool {
	return ig == nil || len(ig.raw) == 0
}

// Skip reports whether the entry at rel (slash-separated, relative to the
// measured folder) is excluded.
func (ig *Ignore) Skip(rel string, isDir bool) bool {
	name := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		name = rel[i+1:]
	}
	if builtinIgnored[name] {
		return true
	}
	if ig == nil {
		return false
	}

	if isDir && (ig.names[name] || ig.relPaths[rel]) {
		return true
	}
	for _, g := range ig.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func normalizePattern(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	p = strings.TrimPrefix(p, "./")
	return strings.TrimSuffix(p, "/")
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
