package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timberwatch/timberwatch/internal/config"
	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/model"
)

// NewQueueCmd creates the queue command.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline detection queue",
		Long: `Queue shows the offline detection queue: counts by status, the
oldest pending items awaiting authoritative confirmation, and the most
recent sync passes.

Examples:
  # Show queue status
  timberwatch queue

  # Show more pending items
  timberwatch queue --limit 25`,
		Args: cobra.NoArgs,
		RunE: runQueueCmd,
	}

	cmd.Flags().StringP("data-dir", "d", "",
		"Directory holding the database (default: XDG data directory)")
	cmd.Flags().IntP("limit", "l", 10,
		"Maximum pending items to list")

	return cmd
}

// runQueueCmd executes the queue command.
func runQueueCmd(cmd *cobra.Command, _ []string) error {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}
	limit, err := cmd.Flags().GetInt("limit")
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

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	stats, err := store.QueueStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}
	fmt.Fprintf(out, "Offline queue (%s)\n\n", dataDir)
	fmt.Fprintf(out, "  pending: %d\n", stats[model.SyncPending])
	fmt.Fprintf(out, "  synced:  %d\n", stats[model.SyncSynced])
	fmt.Fprintf(out, "  failed:  %d\n", stats[model.SyncFailed])

	items, err := store.OldestPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list pending items: %w", err)
	}
	if len(items) > 0 {
		fmt.Fprintf(out, "\nOldest pending items:\n")
		for _, item := range items {
			fmt.Fprintf(out, "  #%-5d %-16s %-9s conf %3d  %-8s retries %d  %s\n",
				item.ID,
				item.NodeID,
				item.LocalLabel,
				item.LocalConfidence,
				item.LocalTier.String(),
				item.RetryCount,
				item.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
	}

	passes, err := store.RecentSyncHistory(ctx, 5)
	if err != nil {
		return fmt.Errorf("failed to read sync history: %w", err)
	}
	if len(passes) > 0 {
		fmt.Fprintf(out, "\nRecent sync passes:\n")
		for _, pass := range passes {
			network := "offline"
			if pass.Online {
				network = "online"
			}
			fmt.Fprintf(out, "  %s  %-7s synced %d  failed %d  %s\n",
				pass.StartedAt.Format("2006-01-02 15:04:05"),
				network,
				pass.ItemsSynced,
				pass.ItemsFailed,
				pass.Duration.Round(time.Millisecond),
			)
		}
	}

	return nil
}
