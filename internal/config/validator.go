package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/measure"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextRun - a tracking run needs every path and a usable ledger
	ValidationContextRun ValidationContext = "run"
	// ValidationContextOutput - commands that only read the output side (cache, open)
	ValidationContextOutput ValidationContext = "output"
	// ValidationContextLedger - commands that only read run history
	ValidationContextLedger ValidationContext = "ledger"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err returns a ConfigurationError listing every problem, or nil.
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error())).
		WithContext("problems", len(vr.Errors))
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateLogging(result)

	switch ctx {
	case ValidationContextRun:
		c.validateRequired(result)
		c.validateMeasure(result)
		c.validateGit(result)
		c.validateLedger(result)
		c.validatePlacement(result)
	case ValidationContextOutput:
		if c.Output == "" {
			result.AddError("output is required (flag --output or %s_OUTPUT)", EnvPrefix)
		}
	case ValidationContextLedger:
		c.validateLedger(result)
	}

	return result
}

func (c *Config) validateRequired(result *ValidationResult) {
	required := []struct {
		key, flag, value string
	}{
		{"repo", "--repo", c.Repo},
		{"old", "--old", c.Old},
		{"new", "--new", c.New},
		{"output", "--output", c.Output},
	}
	for _, r := range required {
		if r.value == "" {
			result.AddError("%s is required (flag %s or %s_%s)", r.key, r.flag, EnvPrefix, strings.ToUpper(r.key))
		}
	}

	if c.Old != "" && c.Old == c.New {
		result.AddError("old and new must be different paths, both are %q", c.Old)
	}
	for _, p := range []string{c.Old, c.New} {
		if p == ".." || strings.HasPrefix(p, "../") {
			result.AddError("tracked path %q must be relative to the repository root", p)
		}
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		result.AddError("log_level: %v", err)
	}
	switch c.LogJSON {
	case "", "auto", "true", "false":
	default:
		result.AddError("log_json must be auto, true or false, got %q", c.LogJSON)
	}
}

func (c *Config) validateMeasure(result *ValidationResult) {
	if _, err := measure.ParseMode(c.Measure.Mode); err != nil {
		result.AddError("measure.mode: %v", err)
	}
	if _, err := measure.ParseMaxTextSize(c.Measure.MaxTextSize); err != nil {
		result.AddError("measure.max_text_size: %v", err)
	}
	if _, err := measure.NewIgnore(c.IgnoreOld); err != nil {
		result.AddError("ignore_old: %v", err)
	}
	if _, err := measure.NewIgnore(c.IgnoreNew); err != nil {
		result.AddError("ignore_new: %v", err)
	}
}

func (c *Config) validateGit(result *ValidationResult) {
	timeouts := []struct {
		key   string
		value time.Duration
	}{
		{"git.query_timeout", c.Git.QueryTimeout},
		{"git.reset_timeout", c.Git.ResetTimeout},
		{"git.clean_timeout", c.Git.CleanTimeout},
		{"git.checkout_timeout", c.Git.CheckoutTimeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			result.AddError("%s must be positive, got %s", t.key, t.value)
		}
	}
	if c.Git.Pace < 0 {
		result.AddError("git.pace must not be negative, got %s", c.Git.Pace)
	}
	if c.Git.AllowDirty {
		result.AddWarning("git.allow_dirty is set: uncommitted changes in %s will be discarded by checkouts", c.Repo)
	}
}

func (c *Config) validateLedger(result *ValidationResult) {
	switch c.Ledger.Type {
	case "sqlite":
		if c.Ledger.Path == "" {
			result.AddError("ledger.path is required for the sqlite ledger")
		}
	case "postgres", "postgresql":
		if c.Ledger.DSN == "" {
			result.AddError("ledger.dsn is required for the postgres ledger")
		} else if !strings.HasPrefix(c.Ledger.DSN, "postgres://") && !strings.HasPrefix(c.Ledger.DSN, "postgresql://") {
			result.AddError("ledger.dsn must start with postgres:// or postgresql://")
		}
	case "none":
	default:
		result.AddError("ledger.type must be sqlite, postgres or none, got %q", c.Ledger.Type)
	}
}

// validatePlacement rejects state files inside the tracked repository:
// every historical checkout runs `git clean -fdx` there.
func (c *Config) validatePlacement(result *ValidationResult) {
	if c.Repo == "" {
		return
	}

	files := []struct{ key, path string }{
		{"output", c.Output},
		{"cache", c.Cache},
	}
	if c.Memo.Enabled {
		files = append(files, struct{ key, path string }{"memo.path", c.Memo.Path})
	}
	if c.Ledger.Type == "sqlite" {
		files = append(files, struct{ key, path string }{"ledger.path", c.Ledger.Path})
	}
	if c.LogFile != "" {
		files = append(files, struct{ key, path string }{"log_file", c.LogFile})
	}

	for _, f := range files {
		if f.path == "" {
			continue
		}
		inside, err := within(c.Repo, f.path)
		if err != nil {
			result.AddError("%s: %v", f.key, err)
			continue
		}
		if inside {
			result.AddError("%s (%s) must be outside the tracked repository %s", f.key, f.path, c.Repo)
		}
	}
}

func within(root, path string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
		absPath = filepath.Join(resolved, filepath.Base(absPath))
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false, nil
	}
	return rel == "." || rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}
