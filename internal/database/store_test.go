package database

import (
	"context"
	"testing"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func testQueueItem(nodeID string) *model.QueueItem {
	return &model.QueueItem{
		NodeID:          nodeID,
		LocalLabel:      model.LabelChainsaw,
		LocalConfidence: 72,
		LocalTier:       model.TierHigh,
		RasterPath:      "/var/lib/timberwatch/rasters/a1.pgm",
		Lat:             -3.4621,
		Lon:             -62.2158,
		Battery:         68,
		Metadata:        map[string]string{"rssi": "-92"},
	}
}

func TestOpenRequiresExistingDatabase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfNotExists = false

	if _, err := Open(dir, opts); err == nil {
		t.Error("Open() succeeded without database file, want error")
	}
}

func TestEnqueueAndOldestPending(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, node := range []string{"ridge-01", "ridge-02", "ridge-03"} {
		id, err := s.EnqueueDetection(ctx, testQueueItem(node))
		if err != nil {
			t.Fatalf("EnqueueDetection() error = %v", err)
		}
		ids = append(ids, id)
	}

	items, err := s.OldestPending(ctx, 2)
	if err != nil {
		t.Fatalf("OldestPending() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	// Strictly oldest first.
	if items[0].ID != ids[0] || items[1].ID != ids[1] {
		t.Errorf("order = [%d %d], want [%d %d]", items[0].ID, items[1].ID, ids[0], ids[1])
	}

	got := items[0]
	if got.NodeID != "ridge-01" || got.LocalLabel != model.LabelChainsaw || got.LocalTier != model.TierHigh {
		t.Errorf("item = %+v", got)
	}
	if got.Status != model.SyncPending || got.RetryCount != 0 {
		t.Errorf("status/retries = %v/%d, want pending/0", got.Status, got.RetryCount)
	}
	if got.Metadata["rssi"] != "-92" {
		t.Errorf("Metadata = %v, want rssi preserved", got.Metadata)
	}
}

func TestMarkSynced(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.EnqueueDetection(ctx, testQueueItem("ridge-01"))
	if err != nil {
		t.Fatalf("EnqueueDetection() error = %v", err)
	}

	res := &model.ClassificationResult{
		Backend: "cloud-authoritative", Label: model.LabelChainsaw,
		Confidence: 94, Tier: model.TierCritical, Success: true,
	}
	if err := s.MarkSynced(ctx, id, res); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}

	item, err := s.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error = %v", err)
	}
	if item == nil {
		t.Fatal("GetQueueItem() = nil")
	}
	if item.Status != model.SyncSynced {
		t.Errorf("Status = %v, want synced", item.Status)
	}
	if item.SyncedAt == nil {
		t.Error("SyncedAt = nil, want set")
	}
	if item.Result == nil || item.Result.Confidence != 94 || item.Result.Tier != model.TierCritical {
		t.Errorf("Result = %+v, want authoritative result attached", item.Result)
	}

	// A synced item never reappears in the pending batch.
	pending, err := s.OldestPending(ctx, 10)
	if err != nil {
		t.Fatalf("OldestPending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d items, want 0", len(pending))
	}
}

func TestMarkFailedRetryCeiling(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.EnqueueDetection(ctx, testQueueItem("ridge-01"))
	if err != nil {
		t.Fatalf("EnqueueDetection() error = %v", err)
	}

	const maxRetries = 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.MarkFailed(ctx, id, maxRetries, "backend unreachable"); err != nil {
			t.Fatalf("MarkFailed() attempt %d error = %v", attempt, err)
		}

		item, err := s.GetQueueItem(ctx, id)
		if err != nil {
			t.Fatalf("GetQueueItem() error = %v", err)
		}
		if item.RetryCount != attempt {
			t.Errorf("RetryCount = %d after attempt %d", item.RetryCount, attempt)
		}

		want := model.SyncPending
		if attempt == maxRetries {
			want = model.SyncFailed
		}
		if item.Status != want {
			t.Errorf("Status = %v after attempt %d, want %v", item.Status, attempt, want)
		}
	}

	// Terminal: further failures must not touch the row.
	if err := s.MarkFailed(ctx, id, maxRetries, "still unreachable"); err != nil {
		t.Fatalf("MarkFailed() on failed item error = %v", err)
	}
	item, err := s.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error = %v", err)
	}
	if item.RetryCount != maxRetries || item.Status != model.SyncFailed {
		t.Errorf("terminal item = %v/%d, want failed/%d", item.Status, item.RetryCount, maxRetries)
	}
	if item.LastError != "backend unreachable" {
		t.Errorf("LastError = %q, want last pre-terminal message kept", item.LastError)
	}
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	id1, _ := s.EnqueueDetection(ctx, testQueueItem("n1"))
	s.EnqueueDetection(ctx, testQueueItem("n2"))
	id3, _ := s.EnqueueDetection(ctx, testQueueItem("n3"))

	if err := s.MarkSynced(ctx, id1, &model.ClassificationResult{Success: true}); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	if err := s.MarkFailed(ctx, id3, 1, "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	stats, err := s.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats[model.SyncPending] != 1 || stats[model.SyncSynced] != 1 || stats[model.SyncFailed] != 1 {
		t.Errorf("stats = %v, want one of each", stats)
	}
}

func TestInsertDetectionAndQuery(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	art := &model.Artifact{
		ID: "a1", NodeID: "ridge-03",
		Lat: -3.46, Lon: -62.21, RasterPath: "/tmp/a1.pgm",
	}
	res := &model.ClassificationResult{
		Backend: "cloud-heuristic+cloud-authoritative",
		Label:   model.LabelChainsaw, Confidence: 91, Tier: model.TierCritical,
		Success: true,
	}

	if _, err := s.InsertDetection(ctx, art, res); err != nil {
		t.Fatalf("InsertDetection() error = %v", err)
	}

	records, err := s.DetectionsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DetectionsSince() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.ArtifactID != "a1" || rec.Tier != model.TierCritical || rec.Result.Confidence != 91 {
		t.Errorf("record = %+v", rec)
	}

	old, err := s.DetectionsSince(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DetectionsSince() error = %v", err)
	}
	if len(old) != 0 {
		t.Errorf("future cutoff returned %d records, want 0", len(old))
	}
}

func TestTelemetryAndNodeStatus(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msgs := []*model.ControlMessage{
		{Type: model.ControlBoot, NodeID: "ridge-03", Battery: 100, RSSI: -80, ReceivedAt: now.Add(-2 * time.Minute)},
		{Type: model.ControlHeartbeat, NodeID: "ridge-03", Battery: 99, Lat: -3.46, Lon: -62.21, RSSI: -82, ReceivedAt: now.Add(-time.Minute)},
		{Type: model.ControlAlert, NodeID: "ridge-03", Confidence: 88, Battery: 97, RSSI: -85, ReceivedAt: now},
	}
	for _, msg := range msgs {
		if err := s.InsertTelemetry(ctx, msg); err != nil {
			t.Fatalf("InsertTelemetry() error = %v", err)
		}
		if err := s.UpsertNodeStatus(ctx, msg); err != nil {
			t.Fatalf("UpsertNodeStatus() error = %v", err)
		}
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	n := nodes[0]
	if n.NodeID != "ridge-03" || n.Battery != 97 || n.AlertCount != 1 {
		t.Errorf("node = %+v", n)
	}
	// Coordinates survive messages that omit them.
	if n.Lat == 0 || n.Lon == 0 {
		t.Errorf("coordinates = %f/%f, want kept from heartbeat", n.Lat, n.Lon)
	}
}

func TestSyncHistory(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	reports := []*model.SyncReport{
		{StartedAt: time.Now().Add(-time.Minute), Online: false},
		{
			StartedAt: time.Now(), Online: true,
			ItemsProcessed: 3, ItemsSynced: 2, ItemsFailed: 1,
			Duration: 1500 * time.Millisecond,
			Errors:   []string{"item 7: backend unreachable"},
		},
	}
	for _, rep := range reports {
		if err := s.RecordSyncPass(ctx, rep); err != nil {
			t.Fatalf("RecordSyncPass() error = %v", err)
		}
	}

	history, err := s.RecentSyncHistory(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSyncHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}

	latest := history[0]
	if !latest.Online || latest.ItemsProcessed != 3 || latest.ItemsSynced != 2 || latest.ItemsFailed != 1 {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", latest.Duration)
	}
	if len(latest.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry", latest.Errors)
	}
}

func TestNetworkLog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordNetworkStatus(ctx, true); err != nil {
		t.Fatalf("RecordNetworkStatus() error = %v", err)
	}
	if err := s.RecordNetworkStatus(ctx, false); err != nil {
		t.Fatalf("RecordNetworkStatus() error = %v", err)
	}
}

func TestQueuePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id, err := s.EnqueueDetection(ctx, testQueueItem("ridge-01"))
	if err != nil {
		t.Fatalf("EnqueueDetection() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	opts := DefaultOptions()
	opts.CreateIfNotExists = false
	s2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	item, err := s2.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error = %v", err)
	}
	if item == nil || item.Status != model.SyncPending {
		t.Errorf("item = %+v, want pending item surviving restart", item)
	}
}
