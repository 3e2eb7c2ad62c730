// Package main provides the entry point for the timberwatch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for timberwatch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timberwatch",
		Short: "Acoustic threat detection hub for remote forest deployments",
		Long: `Timberwatch runs the field hub of an acoustic monitoring network.

Solar-powered sensor nodes stream telemetry and compressed spectrogram
captures over a long-range radio link. The hub reassembles lossy
multi-frame transfers, classifies each capture as chainsaw, vehicle, or
natural sound through cloud and on-device backends, and durably queues
actionable detections for authoritative confirmation whenever the
uplink is down.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewQueueCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
