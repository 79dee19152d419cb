package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rohankatakam/migtrack/internal/config"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/storage"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/rohankatakam/migtrack/internal/tracker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure new days of history and update the series file",
	Long: `Resolve the migration start, measure both folders at the last commit of
every UTC day not yet in the series, then merge, validate and save it.

The repository's working tree is checked out onto historical commits and
restored afterwards; it must not contain uncommitted work.

Examples:
  # First run, or a daily incremental one
  migtrack run --repo ../web --old src/legacy --new src/app --output ../site/data/progress.json

  # Recompute everything from the migration start, counting lines too
  migtrack run --config .migtrack.yaml --force --mode lines`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("repo", "", "path to the analyzed git repository")
	flags.String("old", "", "old folder, relative to the repository root")
	flags.String("new", "", "new folder, relative to the repository root")
	flags.Bool("force", false, "discard the existing series, cache and memo and recompute")
	flags.StringSlice("ignore-old", nil, "subfolders or globs to skip under the old folder")
	flags.StringSlice("ignore-new", nil, "subfolders or globs to skip under the new folder")
	flags.String("mode", "size", "measurement: size (bytes and files) or lines (also text lines)")
	flags.String("max-text-size", "10MB", "in lines mode, do not read files larger than this")
	flags.Duration("pace", 0, "minimum pause between historical checkouts, e.g. 1500ms")
	flags.Bool("allow-dirty", false, "run even if the working tree has uncommitted work (it will be discarded)")
	flags.Bool("no-memo", false, "do not reuse or store per-commit measurements")
	flags.String("memo", "", "measurement memo file (default: next to --output)")
	flags.Bool("publish", false, "commit the series file in its own repository if it changed")
	flags.String("message", "", "commit message for --publish")
	flags.Bool("push", true, "push after committing with --publish")
	flags.String("title", "", "chart title stored in meta.ui")
	flags.Duration("query-timeout", 0, "timeout for read-only git commands (default 2m)")
	flags.Duration("checkout-timeout", 0, "timeout for each historical checkout (default 1m)")
}

func runRun(cmd *cobra.Command, args []string) error {
	result := cfg.Validate(config.ValidationContextRun)
	for _, warn := range result.Warnings {
		logger.Stage(logging.StageInit).Warn(warn)
	}
	if err := result.Err(); err != nil {
		return err
	}

	opts, err := tracker.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	ledger := openLedger()
	defer ledger.Close()

	t, err := tracker.New(opts, logger, ledger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := t.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new day(s), %d point(s) in %s (migration start %s, run %s)\n",
		opts.OutputPath, res.DaysMeasured, res.SeriesLength, res.Duration.Round(time.Millisecond),
		temporal.Short(res.MigrationStart.Hash), res.RunID)
	return nil
}

// openLedger never fails the caller: an unusable ledger is logged and
// replaced with one that records nothing.
func openLedger() storage.Ledger {
	ledgerLog := logger.Stage(logging.StageLedger)

	if result := cfg.Validate(config.ValidationContextLedger); result.HasErrors() {
		ledgerLog.WithField("problems", result.Errors).Warn("run ledger disabled")
		return storage.NopLedger{}
	}

	ledger, err := storage.Open(cfg.StorageConfig(), ledgerLog)
	if err != nil {
		ledgerLog.WithError(err).WithFields(logrus.Fields{
			"type": cfg.Ledger.Type,
		}).Warn("run ledger unavailable; this run will not be recorded")
		return storage.NopLedger{}
	}
	return ledger
}
