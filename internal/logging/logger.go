package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Stage names used across a run. Every component logs through an entry
// scoped to one of these.
const (
	StageInit      = "INIT"
	StageCache     = "CACHE"
	StageGit       = "GIT"
	StageAggregate = "AGGREGATE"
	StageCheckout  = "CHECKOUT"
	StageCount     = "COUNT"
	StageValidate  = "VALIDATE"
	StageSave      = "SAVE"
	StagePublish   = "PUBLISH"
	StageLedger    = "LEDGER"
	StageDone      = "DONE"
)

// Config holds logger configuration
type Config struct {
	Level      string    // debug, info, warn, error
	OutputFile string    // Path to log file (empty = stderr only)
	MaxSize    int64     // Max size in bytes before rotation (default: 10MB)
	MaxBackups int       // Number of old log files to keep (default: 3)
	JSONFormat *bool     // nil = JSON unless stderr is a terminal
	Output     io.Writer // Console writer (default: os.Stderr)
}

// Logger owns the process log sink. It is built once at startup and handed
// to components, which only ever see a logrus.FieldLogger.
type Logger struct {
	base   *logrus.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

// ParseLevel converts a configured level name to a logrus level.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}
}

// New creates a new logger instance with the given configuration
func New(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024 // 10MB
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{config: config}

	writers := []io.Writer{config.Output}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		if err := logger.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}

		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	base := logrus.New()
	base.SetOutput(io.MultiWriter(writers...))
	base.SetLevel(level)

	if useJSON(config) {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.base = base
	return logger, nil
}

func useJSON(config Config) bool {
	if config.JSONFormat != nil {
		return *config.JSONFormat
	}
	if f, ok := config.Output.(*os.File); ok {
		return !term.IsTerminal(int(f.Fd()))
	}
	return true
}

// rotateIfNeeded checks if log file needs rotation and performs it
func (l *Logger) rotateIfNeeded() error {
	if l.config.OutputFile == "" {
		return nil
	}

	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < l.config.MaxSize {
		return nil
	}

	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}

	backupPath := fmt.Sprintf("%s.1", l.config.OutputFile)
	if err := os.Rename(l.config.OutputFile, backupPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return nil
}

// Stage returns an entry tagged with the given stage name.
func (l *Logger) Stage(name string) *logrus.Entry {
	return l.base.WithField("stage", name)
}

// Base exposes the underlying logrus logger for callers that need the full
// FieldLogger surface.
func (l *Logger) Base() *logrus.Logger {
	return l.base
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.base.IsLevelEnabled(logrus.DebugLevel)
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Discard returns a logger that drops everything. Useful in tests and for
// commands that must keep stdout clean.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{base: base}
}
