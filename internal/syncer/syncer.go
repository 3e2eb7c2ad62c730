package syncer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/timberwatch/timberwatch/internal/classify"
	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/events"
	"github.com/timberwatch/timberwatch/internal/metrics"
	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/raster"
	"github.com/timberwatch/timberwatch/internal/wire"
)

// Classifier is the routing surface the syncer needs. *classify.Router
// satisfies it; tests substitute a stub.
type Classifier interface {
	Classify(ctx context.Context, art *model.Artifact, mode classify.Mode, forceAuthoritative bool) model.ClassificationResult
}

// Syncer drains the offline detection queue through the authoritative
// classification path.
type Syncer struct {
	store  *database.Store
	router Classifier
	prober classify.NetworkProber

	interval    time.Duration
	batchSize   int
	maxRetries  int
	itemTimeout time.Duration

	sink    events.Sink
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithInterval sets the scheduler wake interval.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) { s.interval = d }
}

// WithBatchSize sets how many pending items one pass drains.
func WithBatchSize(n int) Option {
	return func(s *Syncer) { s.batchSize = n }
}

// WithMaxRetries sets the retry ceiling before an item is terminally
// failed.
func WithMaxRetries(n int) Option {
	return func(s *Syncer) { s.maxRetries = n }
}

// WithItemTimeout bounds one item's classification call.
func WithItemTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.itemTimeout = d }
}

// WithEventSink sets the sink for sync lifecycle events.
func WithEventSink(sink events.Sink) Option {
	return func(s *Syncer) { s.sink = sink }
}

// WithMetrics sets the metrics handle. A nil handle disables metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a Syncer over the given store, router, and connectivity
// prober.
func New(store *database.Store, router Classifier, prober classify.NetworkProber, opts ...Option) *Syncer {
	s := &Syncer{
		store:       store,
		router:      router,
		prober:      prober,
		interval:    30 * time.Second,
		batchSize:   10,
		maxRetries:  3,
		itemTimeout: 15 * time.Second,
		sink:        events.Discard{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes sync passes until the context is cancelled. One pass
// runs immediately so a hub restarting after an outage drains its
// backlog without waiting a full interval.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sync pass and returns its report. The
// report is also persisted to the sync history.
func (s *Syncer) RunOnce(ctx context.Context) *model.SyncReport {
	started := s.now()
	report := &model.SyncReport{StartedAt: started}

	online := s.prober.Online()
	report.Online = online
	if err := s.store.RecordNetworkStatus(ctx, online); err != nil {
		s.logger.Warn("failed to record network status", "error", err)
	}

	if online {
		s.drainBatch(ctx, report)
	}

	report.Duration = s.now().Sub(started)
	if err := s.store.RecordSyncPass(ctx, report); err != nil {
		s.logger.Warn("failed to record sync pass", "error", err)
	}
	s.metrics.ObserveSyncPass(report.Duration.Seconds())
	s.publishQueueDepth(ctx)
	s.sink.Publish(events.SyncPassCompleted{
		Online:    report.Online,
		Processed: report.ItemsProcessed,
		Synced:    report.ItemsSynced,
		Failed:    report.ItemsFailed,
		Duration:  report.Duration,
	})
	return report
}

func (s *Syncer) drainBatch(ctx context.Context, report *model.SyncReport) {
	items, err := s.store.OldestPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("failed to load pending queue items", "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("load batch: %v", err))
		return
	}
	if len(items) == 0 {
		return
	}
	s.logger.Info("sync pass draining queue", "items", len(items))

	for i := range items {
		item := &items[i]
		report.ItemsProcessed++

		res, stop := s.syncItem(ctx, item)
		if stop {
			// The rate window is exhausted; every remaining item would
			// hit the same wall. Leave them pending for the next pass.
			report.ItemsProcessed--
			s.logger.Warn("sync pass stopped by rate limit", "retry_after", res.RetryAfter)
			break
		}

		if res.Success {
			report.ItemsSynced++
			s.metrics.ObserveSyncItem("synced")
			continue
		}

		report.ItemsFailed++
		s.metrics.ObserveSyncItem("failed")
		report.Errors = append(report.Errors, fmt.Sprintf("item %d: %s", item.ID, res.Error))
	}
}

// syncItem attempts authoritative classification for one queue item.
// stop reports that the pass should end without touching the item.
func (s *Syncer) syncItem(ctx context.Context, item *model.QueueItem) (model.ClassificationResult, bool) {
	art, err := s.artifactFromItem(item)
	if err != nil {
		// The raster is gone or unreadable; retrying cannot help, so
		// the item goes terminal on this attempt.
		s.logger.Error("queue item has unusable raster", "queue_id", item.ID, "error", err)
		if ferr := s.store.MarkFailed(ctx, item.ID, 0, err.Error()); ferr != nil {
			s.logger.Error("failed to record sync failure", "queue_id", item.ID, "error", ferr)
		}
		return model.ClassificationResult{Error: err.Error()}, false
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	res := s.router.Classify(itemCtx, art, classify.ModeCloudFast, true)
	cancel()

	if res.RateLimited {
		return res, true
	}

	if res.Success {
		if err := s.store.MarkSynced(ctx, item.ID, &res); err != nil {
			s.logger.Error("failed to mark item synced", "queue_id", item.ID, "error", err)
			res.Success = false
			res.Error = err.Error()
			return res, false
		}
		s.logger.Info("queue item synced",
			"queue_id", item.ID,
			"node_id", item.NodeID,
			"label", res.Label,
			"tier", res.Tier.String())
		return res, false
	}

	s.markFailed(ctx, item, res.Error)
	return res, false
}

func (s *Syncer) markFailed(ctx context.Context, item *model.QueueItem, errMsg string) {
	if err := s.store.MarkFailed(ctx, item.ID, s.maxRetries, errMsg); err != nil {
		s.logger.Error("failed to record sync failure", "queue_id", item.ID, "error", err)
		return
	}
	if item.RetryCount+1 >= s.maxRetries {
		s.logger.Error("queue item exhausted retries, marked failed",
			"queue_id", item.ID,
			"node_id", item.NodeID,
			"retries", item.RetryCount+1,
			"last_error", errMsg)
		return
	}
	s.logger.Warn("sync attempt failed, item stays pending",
		"queue_id", item.ID,
		"retries", item.RetryCount+1,
		"error", errMsg)
}

// artifactFromItem rebuilds a classification artifact from a queue
// row: from the saved PGM when a path is recorded, otherwise from the
// inline compressed raster.
func (s *Syncer) artifactFromItem(item *model.QueueItem) (*model.Artifact, error) {
	art := &model.Artifact{
		ID:              fmt.Sprintf("queue-%d", item.ID),
		NodeID:          item.NodeID,
		Lat:             item.Lat,
		Lon:             item.Lon,
		LocalConfidence: item.LocalConfidence,
		Battery:         item.Battery,
		CapturedAt:      item.CreatedAt,
		RasterPath:      item.RasterPath,
	}

	if item.RasterPath != "" {
		pixels, w, h, err := raster.Load(item.RasterPath)
		if err == nil {
			art.Raster, art.Width, art.Height = pixels, w, h
			return art, nil
		}
		if item.RasterB64 == "" {
			return nil, fmt.Errorf("load raster %s: %w", item.RasterPath, err)
		}
	}

	stream, err := base64.StdEncoding.DecodeString(item.RasterB64)
	if err != nil {
		return nil, fmt.Errorf("decode inline raster: %w", err)
	}
	pixels, w, h, err := wire.Decompress(stream)
	if err != nil {
		return nil, fmt.Errorf("decompress inline raster: %w", err)
	}
	art.Raster, art.Width, art.Height = pixels, w, h
	return art, nil
}

func (s *Syncer) publishQueueDepth(ctx context.Context) {
	stats, err := s.store.QueueStats(ctx)
	if err != nil {
		return
	}
	s.metrics.SetQueueDepth(stats[model.SyncPending])
}
