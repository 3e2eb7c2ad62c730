package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/timberwatch/timberwatch/internal/config"
	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/report"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a markdown detection report",
		Long: `Report renders a markdown summary of recent hub activity:
detections by threat tier, the offline queue, node health, and recent
sync passes.

Examples:
  # Last 24 hours to stdout
  timberwatch report

  # Last week, written to a file
  timberwatch report --since 168h --output weekly.md`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}

	cmd.Flags().StringP("data-dir", "d", "",
		"Directory holding the database (default: XDG data directory)")
	cmd.Flags().DurationP("since", "s", 24*time.Hour,
		"Reporting window, counted back from now")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to this file instead of stdout")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, _ []string) error {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	store, err := database.Open(dataDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database (has the hub run yet?): %w", err)
	}
	defer store.Close()

	daily, err := report.Gather(cmd.Context(), store, time.Now().Add(-since))
	if err != nil {
		return err
	}

	output := cmd.OutOrStdout()
	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err = report.NewMarkdownWriter(output).Write(daily)
	return err
}
