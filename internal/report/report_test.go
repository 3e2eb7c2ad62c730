package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/model"
)

func testDaily() *Daily {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return &Daily{
		GeneratedAt: base,
		Since:       base.Add(-24 * time.Hour),
		Detections: []database.DetectionRecord{
			{
				NodeID: "ridge-01", DetectedAt: base.Add(-2 * time.Hour),
				Label: model.LabelChainsaw, Confidence: 91,
				Tier: model.TierCritical, Backend: "cloud-authoritative",
			},
			{
				NodeID: "ridge-02", DetectedAt: base.Add(-5 * time.Hour),
				Label: model.LabelVehicle, Confidence: 74,
				Tier: model.TierMedium, Backend: "local-heuristic",
			},
		},
		Queue: map[model.SyncStatus]int{
			model.SyncPending: 3,
			model.SyncSynced:  12,
			model.SyncFailed:  1,
		},
		Nodes: []database.NodeStatus{
			{NodeID: "ridge-01", LastSeen: base.Add(-10 * time.Minute), Battery: 81, RSSI: -95, AlertCount: 2},
		},
		SyncPasses: []model.SyncReport{
			{StartedAt: base.Add(-30 * time.Second), Online: true, ItemsSynced: 2, Duration: 800 * time.Millisecond},
		},
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(testDaily()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "Timberwatch Daily Report") {
			t.Error("expected output to contain report title")
		}
		if !strings.Contains(output, "Threat Summary") {
			t.Error("expected output to contain threat summary")
		}
		if !strings.Contains(output, "critical detection(s)") {
			t.Error("expected a caution for the critical detection")
		}
	})

	t.Run("writes detections and node health", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(testDaily()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"ridge-01", "chainsaw", "CRITICAL", "81%", "exhausted their retries"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("handles an empty window", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		daily := &Daily{GeneratedAt: time.Now(), Since: time.Now().Add(-24 * time.Hour), Queue: map[model.SyncStatus]int{}}
		if _, err := NewMarkdownWriter(&buf).Write(daily); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "No detections recorded in the window.") {
			t.Error("expected empty-window detections text")
		}
		if !strings.Contains(output, "No actionable detections in the window.") {
			t.Error("expected the no-action tip")
		}
	})
}

func TestDailyTierCounts(t *testing.T) {
	t.Parallel()

	daily := testDaily()
	counts := daily.TierCounts()
	if counts[model.TierCritical] != 1 || counts[model.TierMedium] != 1 {
		t.Errorf("TierCounts() = %v, want one critical and one medium", counts)
	}
	if daily.Actionable() != 2 {
		t.Errorf("Actionable() = %d, want 2", daily.Actionable())
	}
}

func TestGather(t *testing.T) {
	t.Parallel()

	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	art := &model.Artifact{ID: "a1", NodeID: "ridge-01", Lat: -3.46, Lon: -62.21}
	res := &model.ClassificationResult{
		Backend: "local-heuristic", Label: model.LabelChainsaw,
		Confidence: 88, Tier: model.TierCritical, Success: true,
	}
	if _, err := store.InsertDetection(ctx, art, res); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnqueueDetection(ctx, &model.QueueItem{
		NodeID: "ridge-01", LocalLabel: model.LabelChainsaw,
		LocalConfidence: 88, LocalTier: model.TierCritical, RasterB64: "AA==",
	}); err != nil {
		t.Fatal(err)
	}

	daily, err := Gather(ctx, store, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(daily.Detections) != 1 {
		t.Errorf("Detections = %d, want 1", len(daily.Detections))
	}
	if daily.Queue[model.SyncPending] != 1 {
		t.Errorf("pending = %d, want 1", daily.Queue[model.SyncPending])
	}
}
