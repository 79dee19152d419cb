package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/rohankatakam/migtrack/internal/series"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a series file against the series format",
	Long: `Validate a series file on disk. Defaults to the configured --output.

Reports the first problem found, naming the field and index.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfg.Output
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.ConfigError("no file given and no output configured")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.FileSystemErrorf(err, "failed to read %s", path)
	}
	if err := series.ValidateDocument(raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	s, err := series.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", path)
	fmt.Fprintf(out, "  points:   %d\n", s.Len())
	if s.Len() > 0 {
		first := time.Unix(s.Data[0].Time, 0).UTC().Format("2006-01-02")
		last := time.Unix(s.LastTime(), 0).UTC().Format("2006-01-02")
		fmt.Fprintf(out, "  range:    %s .. %s\n", first, last)
	}
	fmt.Fprintf(out, "  source:   %s\n", s.Meta.SourceRepo)
	fmt.Fprintf(out, "  paths:    %s -> %s\n", s.Meta.OldPath, s.Meta.NewPath)
	fmt.Fprintf(out, "  generated %s\n", s.Meta.GeneratedAt)
	return nil
}
