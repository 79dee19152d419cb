package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"
	"github.com/rohankatakam/migtrack/internal/errors"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open [path|url]",
	Short: "Open the progress chart in the default browser",
	Long: `Open the chart page that renders the series. Defaults to index.html in the
directory of the configured --output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	target, err := chartTarget(args, cfg.Output)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", target)
	if isURL(target) {
		err = browser.OpenURL(target)
	} else {
		err = browser.OpenFile(target)
	}
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Could not open a browser. Open %s manually.\n", target)
		return err
	}
	return nil
}

// chartTarget resolves what to open: an explicit URL as is, otherwise an
// existing local file.
func chartTarget(args []string, output string) (string, error) {
	var path string
	switch {
	case len(args) == 1 && isURL(args[0]):
		return args[0], nil
	case len(args) == 1:
		path = args[0]
	case output != "":
		path = filepath.Join(filepath.Dir(output), "index.html")
	default:
		return "", errors.ConfigError("no path given and no output configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.FileSystemErrorf(err, "failed to resolve %s", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", errors.FileSystemErrorf(err, "chart page %s not found", abs)
	}
	return abs, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "file://")
}
