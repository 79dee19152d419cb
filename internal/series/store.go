package series

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rohankatakam/migtrack/internal/errors"
)

// Load reads the series at path. A missing file returns nil and no error;
// a file that exists but cannot be parsed is an error, since silently
// starting over would discard history.
func Load(path string) (*Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.FileSystemErrorf(err, "failed to read series %s", path)
	}

	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to parse existing series %s", path)
	}
	return &s, nil
}

// Write replaces the file at path with s. The document is written to a
// temporary file in the same directory, synced and renamed over the target,
// so readers see either the old or the new series, never a partial one.
func Write(path string, s Series) error {
	if s.Data == nil {
		s.Data = []DataPoint{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.FileSystemErrorf(err, "failed to encode series")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.FileSystemErrorf(err, "failed to create temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileSystemErrorf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return errors.FileSystemErrorf(err, "failed to set permissions on %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.FileSystemErrorf(err, "failed to replace %s", path)
	}
	return nil
}
