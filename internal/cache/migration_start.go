// Package cache keeps derived facts between runs so repeated invocations are
// incremental: the resolved migration start, and per-commit measurements.
// Nothing stored here is needed for correctness; every failure degrades to
// a miss.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/sirupsen/logrus"
)

// SchemaVersion is bumped whenever Record changes shape. A record with any
// other version is ignored.
const SchemaVersion = 1

// DefaultFileName is placed next to the series file unless configured.
const DefaultFileName = ".migration-cache.json"

// Record is the cached result of resolving the migration start.
type Record struct {
	Version                 int    `json:"version"`
	MigrationStartHash      string `json:"migrationStartHash"`
	MigrationStartTimestamp int64  `json:"migrationStartTimestamp"`
	OldPath                 string `json:"oldPath"`
	NewPath                 string `json:"newPath"`
	CreatedAt               string `json:"createdAt"`
}

// NewRecord builds a record for a freshly resolved start.
func NewRecord(start temporal.Commit, oldPath, newPath string, now time.Time) Record {
	return Record{
		Version:                 SchemaVersion,
		MigrationStartHash:      start.Hash,
		MigrationStartTimestamp: start.Timestamp,
		OldPath:                 oldPath,
		NewPath:                 newPath,
		CreatedAt:               now.UTC().Format(time.RFC3339Nano),
	}
}

// Commit returns the cached migration start.
func (r Record) Commit() temporal.Commit {
	return temporal.Commit{Hash: r.MigrationStartHash, Timestamp: r.MigrationStartTimestamp}
}

// CommitChecker reports whether a hash still names a commit.
type CommitChecker interface {
	CommitExists(ctx context.Context, hash string) (bool, error)
}

// MigrationStartCache stores one Record as a JSON file.
type MigrationStartCache struct {
	path   string
	logger logrus.FieldLogger
}

// DefaultPath returns the cache path used when none is configured: a file
// next to the series output.
func DefaultPath(outputPath string) string {
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		abs = outputPath
	}
	return filepath.Join(filepath.Dir(abs), DefaultFileName)
}

// NewMigrationStartCache creates a cache backed by the file at path.
func NewMigrationStartCache(path string, logger logrus.FieldLogger) *MigrationStartCache {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &MigrationStartCache{path: path, logger: logger}
}

// Path returns the absolute cache file path.
func (c *MigrationStartCache) Path() string {
	return c.path
}

// Load reads the record. A missing file, unparseable JSON or another schema
// version all yield ok=false; the last two are logged as warnings.
func (c *MigrationStartCache) Load() (Record, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			c.warn(errors.CacheWarning(err, "failed to read cache"))
		}
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.warn(errors.CacheWarning(err, "failed to parse cache"))
		return Record{}, false
	}

	if rec.Version != SchemaVersion {
		c.warn(errors.CacheWarning(nil,
			fmt.Sprintf("cache version mismatch: expected %d, got %d", SchemaVersion, rec.Version)))
		return Record{}, false
	}

	return rec, true
}

// Validate reports whether rec applies to this invocation: both paths must
// match exactly and the cached commit must still exist. Any doubt counts as
// invalid.
func (c *MigrationStartCache) Validate(ctx context.Context, rec Record, repo CommitChecker, oldPath, newPath string) bool {
	if rec.OldPath != oldPath || rec.NewPath != newPath {
		c.warn(errors.CacheWarning(nil, "cache paths do not match current parameters").
			WithContext("cached_old", rec.OldPath).
			WithContext("cached_new", rec.NewPath))
		return false
	}

	exists, err := repo.CommitExists(ctx, rec.MigrationStartHash)
	if err != nil {
		c.warn(errors.CacheWarning(err, "could not verify cached commit"))
		return false
	}
	if !exists {
		c.warn(errors.CacheWarning(nil,
			fmt.Sprintf("cached commit %s no longer exists (history rewritten?)", temporal.Short(rec.MigrationStartHash))))
		return false
	}

	return true
}

// Save writes rec. It never fails the caller: write errors are logged and
// the next run simply resolves again.
func (c *MigrationStartCache) Save(rec Record) {
	if err := c.write(rec); err != nil {
		c.warn(errors.CacheWarning(err, "failed to save cache"))
		return
	}
	c.logger.WithField("path", c.path).Info("saved migration start cache")
}

// Clear removes the cache file. A missing file is not an error.
func (c *MigrationStartCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.FileSystemErrorf(err, "failed to remove cache %s", c.path)
	}
	return nil
}

func (c *MigrationStartCache) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *MigrationStartCache) warn(e *errors.Error) {
	entry := c.logger.WithField("path", c.path)
	for k, v := range e.Context {
		entry = entry.WithField(k, v)
	}
	entry.Warn(e.Error())
}
