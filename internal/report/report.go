package report

import (
	"context"
	"fmt"
	"time"

	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/model"
)

// Daily holds everything the daily report renders, gathered in one
// pass over the store.
type Daily struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time

	// Since is the start of the reporting window.
	Since time.Time

	// Detections are the window's classified detections, newest first.
	Detections []database.DetectionRecord

	// Queue is the offline queue broken down by status.
	Queue map[model.SyncStatus]int

	// Nodes is the current per-node health view.
	Nodes []database.NodeStatus

	// SyncPasses are the most recent sync scheduler passes.
	SyncPasses []model.SyncReport
}

// TierCounts tallies the window's detections by threat tier.
func (d *Daily) TierCounts() map[model.ThreatTier]int {
	counts := make(map[model.ThreatTier]int)
	for _, rec := range d.Detections {
		counts[rec.Tier]++
	}
	return counts
}

// Actionable counts detections at MEDIUM or above.
func (d *Daily) Actionable() int {
	var n int
	for _, rec := range d.Detections {
		if rec.Tier >= model.TierMedium {
			n++
		}
	}
	return n
}

// Gather assembles a Daily covering everything after since.
func Gather(ctx context.Context, store *database.Store, since time.Time) (*Daily, error) {
	detections, err := store.DetectionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to gather detections: %w", err)
	}
	queue, err := store.QueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather queue stats: %w", err)
	}
	nodes, err := store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather node status: %w", err)
	}
	passes, err := store.RecentSyncHistory(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to gather sync history: %w", err)
	}

	return &Daily{
		GeneratedAt: time.Now(),
		Since:       since,
		Detections:  detections,
		Queue:       queue,
		Nodes:       nodes,
		SyncPasses:  passes,
	}, nil
}
