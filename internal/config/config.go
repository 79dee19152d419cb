package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rohankatakam/migtrack/internal/cache"
	"github.com/rohankatakam/migtrack/internal/git"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/publish"
	"github.com/rohankatakam/migtrack/internal/storage"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. MIGTRACK_REPO or
// MIGTRACK_GIT_QUERY_TIMEOUT.
const EnvPrefix = "MIGTRACK"

// Config holds all configuration settings
type Config struct {
	Repo   string `mapstructure:"repo" yaml:"repo"`
	Old    string `mapstructure:"old" yaml:"old"`
	New    string `mapstructure:"new" yaml:"new"`
	Output string `mapstructure:"output" yaml:"output"`
	Force  bool   `mapstructure:"force" yaml:"force"`
	Cache  string `mapstructure:"cache" yaml:"cache"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	LogJSON  string `mapstructure:"log_json" yaml:"log_json"` // auto, true or false

	IgnoreOld []string `mapstructure:"ignore_old" yaml:"ignore_old"`
	IgnoreNew []string `mapstructure:"ignore_new" yaml:"ignore_new"`

	Measure MeasureConfig `mapstructure:"measure" yaml:"measure"`
	Git     GitConfig     `mapstructure:"git" yaml:"git"`
	Memo    MemoConfig    `mapstructure:"memo" yaml:"memo"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger"`
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"config_file,omitempty"`
}

type MeasureConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`                   // size or lines
	MaxTextSize string `mapstructure:"max_text_size" yaml:"max_text_size"` // lines mode skips larger files, e.g. "10MB"
}

type GitConfig struct {
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	CleanTimeout    time.Duration `mapstructure:"clean_timeout" yaml:"clean_timeout"`
	CheckoutTimeout time.Duration `mapstructure:"checkout_timeout" yaml:"checkout_timeout"`
	Pace            time.Duration `mapstructure:"pace" yaml:"pace"` // pause between historical checkouts
	AllowDirty      bool          `mapstructure:"allow_dirty" yaml:"allow_dirty"`
}

type MemoConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type LedgerConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // sqlite, postgres, none
	Path string `mapstructure:"path" yaml:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Message string `mapstructure:"message" yaml:"message"`
	Push    bool   `mapstructure:"push" yaml:"push"`
}

type UIConfig struct {
	Title          string `mapstructure:"title" yaml:"title"`
	OldLabel       string `mapstructure:"old_label" yaml:"old_label"`
	NewLabel       string `mapstructure:"new_label" yaml:"new_label"`
	OldDescription string `mapstructure:"old_description" yaml:"old_description"`
	NewDescription string `mapstructure:"new_description" yaml:"new_description"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	timeouts := git.DefaultTimeouts()
	return &Config{
		LogLevel: "info",
		LogJSON:  "auto",
		Measure: MeasureConfig{
			Mode:        "size",
			MaxTextSize: "10MB",
		},
		Git: GitConfig{
			QueryTimeout:    timeouts.Query,
			ResetTimeout:    timeouts.Reset,
			CleanTimeout:    timeouts.Clean,
			CheckoutTimeout: timeouts.Checkout,
		},
		Memo: MemoConfig{Enabled: true},
		Ledger: LedgerConfig{
			Type: "sqlite",
			Path: filepath.Join(homeDir, ".migtrack", "runs.db"),
		},
		Publish: PublishConfig{
			Message: publish.DefaultMessage,
			Push:    true,
		},
	}
}

// flagKeys maps CLI flag names to configuration keys. Flags not listed here
// bind to the key of the same name.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"log-file":         "log_file",
	"log-json":         "log_json",
	"ignore-old":       "ignore_old",
	"ignore-new":       "ignore_new",
	"mode":             "measure.mode",
	"max-text-size":    "measure.max_text_size",
	"pace":             "git.pace",
	"allow-dirty":      "git.allow_dirty",
	"query-timeout":    "git.query_timeout",
	"checkout-timeout": "git.checkout_timeout",
	"no-memo":          "",
	"memo":             "memo.path",
	"ledger":           "ledger.type",
	"ledger-path":      "ledger.path",
	"ledger-dsn":       "ledger.dsn",
	"publish":          "publish.enabled",
	"message":          "publish.message",
	"push":             "publish.push",
	"title":            "ui.title",
}

// Load builds the effective configuration. Precedence, lowest first:
// defaults, config file, .env files, environment, flags. path selects the
// config file; when empty, .migtrack.{yaml,yml,json} is looked up in the
// working directory and then $HOME.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(expandPath(path))
	} else {
		v.SetConfigName(".migtrack")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(homeDir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if flags != nil {
		if f := flags.Lookup("no-memo"); f != nil && f.Changed && f.Value.String() == "true" {
			cfg.Memo.Enabled = false
		}
	}

	cfg.normalize()
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("repo", d.Repo)
	v.SetDefault("old", d.Old)
	v.SetDefault("new", d.New)
	v.SetDefault("output", d.Output)
	v.SetDefault("force", d.Force)
	v.SetDefault("cache", d.Cache)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_json", d.LogJSON)
	v.SetDefault("ignore_old", []string{})
	v.SetDefault("ignore_new", []string{})
	v.SetDefault("measure.mode", d.Measure.Mode)
	v.SetDefault("measure.max_text_size", d.Measure.MaxTextSize)
	v.SetDefault("git.query_timeout", d.Git.QueryTimeout)
	v.SetDefault("git.reset_timeout", d.Git.ResetTimeout)
	v.SetDefault("git.clean_timeout", d.Git.CleanTimeout)
	v.SetDefault("git.checkout_timeout", d.Git.CheckoutTimeout)
	v.SetDefault("git.pace", d.Git.Pace)
	v.SetDefault("git.allow_dirty", d.Git.AllowDirty)
	v.SetDefault("memo.enabled", d.Memo.Enabled)
	v.SetDefault("memo.path", d.Memo.Path)
	v.SetDefault("ledger.type", d.Ledger.Type)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("ledger.dsn", d.Ledger.DSN)
	v.SetDefault("publish.enabled", d.Publish.Enabled)
	v.SetDefault("publish.message", d.Publish.Message)
	v.SetDefault("publish.push", d.Publish.Push)
	v.SetDefault("ui.title", d.UI.Title)
	v.SetDefault("ui.old_label", d.UI.OldLabel)
	v.SetDefault("ui.new_label", d.UI.NewLabel)
	v.SetDefault("ui.old_description", d.UI.OldDescription)
	v.SetDefault("ui.new_description", d.UI.NewDescription)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key, mapped := flagKeys[f.Name]
		if !mapped {
			key = f.Name
		}
		// Only explicitly set flags override lower layers.
		if key == "" || !isKnownKey(key) || !f.Changed {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("failed to bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

func isKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

var knownKeys = []string{
	"repo", "old", "new", "output", "force", "cache",
	"log_level", "log_file", "log_json", "ignore_old", "ignore_new",
	"measure.mode", "measure.max_text_size",
	"git.query_timeout", "git.reset_timeout", "git.clean_timeout", "git.checkout_timeout",
	"git.pace", "git.allow_dirty",
	"memo.enabled", "memo.path",
	"ledger.type", "ledger.path", "ledger.dsn",
	"publish.enabled", "publish.message", "publish.push",
	"ui.title", "ui.old_label", "ui.new_label", "ui.old_description", "ui.new_description",
}

// normalize expands ~, splits comma-separated ignore lists and fills the
// defaults that depend on the output path.
func (c *Config) normalize() {
	c.Repo = expandPath(strings.TrimSpace(c.Repo))
	c.Output = expandPath(strings.TrimSpace(c.Output))
	c.Cache = expandPath(strings.TrimSpace(c.Cache))
	c.LogFile = expandPath(c.LogFile)
	c.Memo.Path = expandPath(c.Memo.Path)
	c.Ledger.Path = expandPath(c.Ledger.Path)
	c.Old = git.NormalizePath(strings.TrimSpace(c.Old))
	c.New = git.NormalizePath(strings.TrimSpace(c.New))
	c.IgnoreOld = splitList(c.IgnoreOld)
	c.IgnoreNew = splitList(c.IgnoreNew)
	c.Measure.Mode = strings.ToLower(strings.TrimSpace(c.Measure.Mode))
	c.Ledger.Type = strings.ToLower(strings.TrimSpace(c.Ledger.Type))
	c.LogJSON = strings.ToLower(strings.TrimSpace(c.LogJSON))

	if c.Output != "" {
		if c.Cache == "" {
			c.Cache = cache.DefaultPath(c.Output)
		}
		if c.Memo.Path == "" {
			c.Memo.Path = cache.DefaultMemoPath(c.Output)
		}
	}
}

// splitList flattens entries that are themselves comma-separated, as they
// arrive from environment variables, and drops empty ones.
func splitList(in []string) []string {
	out := []string{}
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides a variable that is already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".migtrack", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// GitTimeouts returns the per-operation git timeouts.
func (c *Config) GitTimeouts() git.Timeouts {
	return git.Timeouts{
		Query:    c.Git.QueryTimeout,
		Reset:    c.Git.ResetTimeout,
		Clean:    c.Git.CleanTimeout,
		Checkout: c.Git.CheckoutTimeout,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.Config{Level: c.LogLevel, OutputFile: c.LogFile}
	switch c.LogJSON {
	case "true":
		on := true
		lc.JSONFormat = &on
	case "false":
		off := false
		lc.JSONFormat = &off
	}
	return lc
}

// StorageConfig returns the run ledger settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Type: c.Ledger.Type, Path: c.Ledger.Path, DSN: c.Ledger.DSN}
}
