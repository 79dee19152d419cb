package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rohankatakam/migtrack/internal/config"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/storage"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the run ledger",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.ValidationContextLedger).Err(); err != nil {
		return err
	}

	ledger, err := storage.Open(cfg.StorageConfig(), logger.Stage(logging.StageLedger))
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.ListRuns(context.Background(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func renderRuns(w io.Writer, runs []*storage.Run) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.AppendHeader(table.Row{"Run", "Started", "Duration", "Status", "Repo", "Paths", "Start", "Days", "Points"})

	for _, r := range runs {
		duration := "-"
		if r.FinishedAt.Valid {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		status := string(r.Status)
		if r.Force {
			status += " (force)"
		}
		tbl.AppendRow(table.Row{
			shortID(r.ID),
			humanize.Time(r.StartedAt),
			duration,
			status,
			r.Repo,
			r.OldPath + " -> " + r.NewPath,
			temporal.Short(r.MigrationStart),
			r.DaysMeasured,
			r.SeriesLength,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(runs))})
	tbl.Render()

	for _, r := range runs {
		if r.Status == storage.RunFailed && r.Error != "" {
			fmt.Fprintf(w, "%s failed: %s\n", shortID(r.ID), r.Error)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
