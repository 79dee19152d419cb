package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rohankatakam/migtrack/internal/cache"
	"github.com/rohankatakam/migtrack/internal/config"
	"github.com/rohankatakam/migtrack/internal/logging"
	"github.com/rohankatakam/migtrack/internal/temporal"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the migration start cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached migration start",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var clearMemo bool

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached migration start so the next run resolves it again",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearMemo, "memo", false, "also clear the measurement memo")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.ValidationContextOutput).Err(); err != nil {
		return err
	}

	store := cache.NewMigrationStartCache(cfg.Cache, logger.Stage(logging.StageCache))
	out := cmd.OutOrStdout()

	rec, ok := store.Load()
	if !ok {
		fmt.Fprintf(out, "No usable cache at %s\n", store.Path())
		return nil
	}

	start := rec.Commit()
	created, _ := time.Parse(time.RFC3339, rec.CreatedAt)
	fmt.Fprintf(out, "Cache:           %s\n", store.Path())
	fmt.Fprintf(out, "Migration start: %s (%s)\n", temporal.Short(start.Hash), start.Time().UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Old path:        %s\n", rec.OldPath)
	fmt.Fprintf(out, "New path:        %s\n", rec.NewPath)
	if !created.IsZero() {
		fmt.Fprintf(out, "Created:         %s (%s)\n", rec.CreatedAt, humanize.Time(created))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(config.ValidationContextOutput).Err(); err != nil {
		return err
	}

	cacheLog := logger.Stage(logging.StageCache)
	store := cache.NewMigrationStartCache(cfg.Cache, cacheLog)
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", store.Path())

	if !clearMemo {
		return nil
	}

	memo, err := cache.OpenMemo(cfg.Memo.Path, cacheLog)
	if err != nil {
		return err
	}
	defer memo.Close()

	entries := memo.Len()
	if err := memo.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d memoized measurement(s) from %s\n", entries, memo.Path())
	return nil
}
