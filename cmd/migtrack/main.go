package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/rohankatakam/migtrack/internal/config"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	logger  *logging.Logger
	cfg     *config.Config
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		if err != nil && logger.IsDebugEnabled() {
			var e *errors.Error
			if stderrors.As(err, &e) {
				logger.Base().Debug(e.DetailedString())
			}
		}
		logger.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "migtrack",
	Short: "Track how a code migration progresses through git history",
	Long: `migtrack measures an old and a new folder of a git repository once per
day of history, starting when both folders first coexisted, and keeps the
results in a JSON time series suitable for charting.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to load configuration")
		}

		logger, err = logging.New(cfg.LoggingConfig())
		if err != nil {
			return errors.ConfigErrorf("failed to initialize logging: %v", err)
		}
		if cfg.File != "" {
			logger.Stage(logging.StageInit).WithField("file", cfg.File).Debug("loaded config file")
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: .migtrack.yaml in the working directory or $HOME)")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("log-file", "", "also write logs to this file (rotated)")
	flags.String("log-json", "auto", "log format: auto|true|false (auto = JSON unless stderr is a terminal)")
	flags.String("output", "", "path of the JSON series file")
	flags.String("cache", "", "migration start cache file (default: next to --output)")
	flags.String("ledger", "sqlite", "run ledger backend: sqlite|postgres|none")
	flags.String("ledger-path", "", "sqlite ledger file (default: ~/.migtrack/runs.db)")
	flags.String("ledger-dsn", "", "postgres ledger connection string")

	rootCmd.SetVersionTemplate(`migtrack {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(openCmd)
}
