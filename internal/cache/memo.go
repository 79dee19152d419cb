package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/measure"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const memoBucket = "measurements"

// DefaultMemoFileName is placed next to the series output unless configured.
const DefaultMemoFileName = ".migration-memo.db"

// MemoKey identifies one folder measurement. The same folder at the same
// commit measured with the same ignore rules, mode and text size limit
// always yields the same stats, so a run that crashed half way never repeats
// finished work.
type MemoKey struct {
	Commit  string
	Path    string
	Ignored []string
	Mode    measure.Mode
	// MaxTextBytes only affects lines mode and is left out of size-mode keys.
	MaxTextBytes int64
}

func (k MemoKey) bytes() []byte {
	ignored := append([]string(nil), k.Ignored...)
	sort.Strings(ignored)
	parts := []string{
		k.Commit,
		string(k.Mode),
		k.Path,
		strings.Join(ignored, ","),
	}
	if k.Mode == measure.ModeLines {
		parts = append(parts, strconv.FormatInt(k.MaxTextBytes, 10))
	}
	return []byte(strings.Join(parts, "\x00"))
}

// Memo is a bbolt-backed store of folder measurements. A nil *Memo is a
// valid, always-empty memo.
type Memo struct {
	db     *bolt.DB
	path   string
	logger logrus.FieldLogger
}

// DefaultMemoPath returns the memo path used when none is configured.
func DefaultMemoPath(outputPath string) string {
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		abs = outputPath
	}
	return filepath.Join(filepath.Dir(abs), DefaultMemoFileName)
}

// OpenMemo opens or creates the memo database at path.
func OpenMemo(path string, logger logrus.FieldLogger) (*Memo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to create memo directory for %s", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCache, errors.SeverityLow,
			fmt.Sprintf("failed to open measurement memo %s", path))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(memoBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeCache, errors.SeverityLow, "failed to initialize measurement memo")
	}

	return &Memo{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (m *Memo) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Get returns the stored stats for key.
func (m *Memo) Get(key MemoKey) (measure.Stats, bool) {
	if m == nil {
		return measure.Stats{}, false
	}

	var (
		stats measure.Stats
		found bool
	)
	err := m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(memoBucket))
		if b == nil {
			return nil
		}
		data := b.Get(key.bytes())
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &stats); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		m.logger.WithError(err).WithField("commit", key.Commit).Warn("ignoring unreadable memo entry")
		return measure.Stats{}, false
	}
	return stats, found
}

// Put stores stats for key. Failures are logged and otherwise ignored.
func (m *Memo) Put(key MemoKey, stats measure.Stats) {
	if m == nil {
		return
	}

	err := m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(memoBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return b.Put(key.bytes(), data)
	})
	if err != nil {
		m.logger.WithError(err).WithField("commit", key.Commit).Warn("failed to store measurement in memo")
	}
}

// Len returns the number of stored measurements.
func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	m.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(memoBucket)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

// Clear drops every stored measurement.
func (m *Memo) Clear() error {
	if m == nil {
		return nil
	}
	err := m.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(memoBucket)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(memoBucket))
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCache, errors.SeverityLow, "failed to clear measurement memo")
	}
	return nil
}

// Close releases the database file lock.
func (m *Memo) Close() error {
	if m == nil {
		return nil
	}
	return m.db.Close()
}
