package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timberwatch/timberwatch/internal/classify"
	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/events"
	"github.com/timberwatch/timberwatch/internal/metrics"
	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/radio"
	"github.com/timberwatch/timberwatch/internal/raster"
	"github.com/timberwatch/timberwatch/internal/reassembly"
	"github.com/timberwatch/timberwatch/internal/wire"
)

// Classifier routes one artifact through the classification backends.
// *classify.Router satisfies it; tests substitute stubs.
type Classifier interface {
	Classify(ctx context.Context, art *model.Artifact, mode classify.Mode, forceAuthoritative bool) model.ClassificationResult
}

var _ Classifier = (*classify.Router)(nil)

// SyncRunner is the background queue drainer. *syncer.Syncer satisfies
// it.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// Stats is a point-in-time snapshot of the hub's counters.
type Stats struct {
	FramesReceived   int64 `json:"frames_received"`
	ControlMessages  int64 `json:"control_messages"`
	Artifacts        int64 `json:"artifacts"`
	Dropped          int64 `json:"dropped"`
	Classifications  int64 `json:"classifications"`
	DetectionsQueued int64 `json:"detections_queued"`
}

// Hub owns the three pipeline workers and everything they share.
type Hub struct {
	source  radio.FrameSource
	tracker *reassembly.Tracker
	router  Classifier
	store   *database.Store
	sync    SyncRunner
	sink    events.Sink
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger

	mode      classify.Mode
	rasterDir string
	// authoritativeName identifies results that already carry
	// authoritative truth and therefore never need queueing.
	authoritativeName string
	tick              time.Duration

	frames chan model.Frame

	framesReceived   atomic.Int64
	controlMessages  atomic.Int64
	artifacts        atomic.Int64
	dropped          atomic.Int64
	classifications  atomic.Int64
	detectionsQueued atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithMode sets the classification mode for live artifacts.
func WithMode(mode classify.Mode) Option {
	return func(h *Hub) { h.mode = mode }
}

// WithRasterDir sets the directory completed rasters are saved under.
// Empty disables saving; the raster travels inline on queue items.
func WithRasterDir(dir string) Option {
	return func(h *Hub) { h.rasterDir = dir }
}

// WithAuthoritativeBackend names the backend whose results need no
// later confirmation.
func WithAuthoritativeBackend(name string) Option {
	return func(h *Hub) { h.authoritativeName = name }
}

// WithTick sets the ingest drain interval.
func WithTick(d time.Duration) Option {
	return func(h *Hub) { h.tick = d }
}

// WithFrameBuffer sets the intake channel capacity.
func WithFrameBuffer(n int) Option {
	return func(h *Hub) { h.frames = make(chan model.Frame, n) }
}

// WithEventSink sets the sink pipeline events are published to.
func WithEventSink(sink events.Sink) Option {
	return func(h *Hub) { h.sink = sink }
}

// WithMetrics attaches prometheus instruments. Nil is fine.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New assembles a Hub around an already-wired source, tracker, router,
// store, and sync scheduler.
func New(source radio.FrameSource, tracker *reassembly.Tracker, router Classifier, store *database.Store, sync SyncRunner, opts ...Option) *Hub {
	h := &Hub{
		source:            source,
		tracker:           tracker,
		router:            router,
		store:             store,
		sync:              sync,
		sink:              events.Discard{},
		logger:            slog.Default(),
		mode:              classify.ModeAuto,
		authoritativeName: "cloud-authoritative",
		tick:              500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.frames == nil {
		h.frames = make(chan model.Frame, 256)
	}
	return h
}

// Run starts the three workers and blocks until the context is
// cancelled or a worker fails. In-flight backend calls finish or time
// out on their own; a completed artifact is never abandoned mid-tick.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.source.Run(ctx, h.frames)
	})
	g.Go(func() error {
		return h.ingestLoop(ctx)
	})
	g.Go(func() error {
		return h.sync.Run(ctx)
	})

	return g.Wait()
}

// Stats snapshots the hub counters. Safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	return Stats{
		FramesReceived:   h.framesReceived.Load(),
		ControlMessages:  h.controlMessages.Load(),
		Artifacts:        h.artifacts.Load(),
		Dropped:          h.dropped.Load(),
		Classifications:  h.classifications.Load(),
		DetectionsQueued: h.detectionsQueued.Load(),
	}
}

// ingestLoop drains the intake channel on every tick and drives each
// frame through reassembly, then classification. It is the sole writer
// of session state.
func (h *Hub) ingestLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.drainFrames(ctx)
		}
	}
}

func (h *Hub) drainFrames(ctx context.Context) {
	for {
		select {
		case frame := <-h.frames:
			h.handleFrame(ctx, frame)
		default:
			return
		}
	}
}

func (h *Hub) handleFrame(ctx context.Context, frame model.Frame) {
	h.framesReceived.Add(1)

	emission := h.tracker.Ingest(frame)
	switch emission.Kind {
	case reassembly.EmissionControl:
		h.metrics.ObserveFrame("control")
		h.handleControl(ctx, emission.Control)
	case reassembly.EmissionArtifact:
		h.metrics.ObserveFrame("protocol")
		h.metrics.ObserveArtifact()
		h.handleArtifact(ctx, emission.Artifact)
	case reassembly.EmissionDropped:
		h.metrics.ObserveFrame("dropped")
		h.metrics.ObserveDrop(emission.DropReason)
		h.dropped.Add(1)
		h.logger.Debug("frame dropped",
			"reason", emission.DropReason,
			"rssi", frame.RSSI,
		)
	default:
		h.metrics.ObserveFrame("protocol")
	}
}

// handleControl persists telemetry and node status. A failed write
// loses one reading, not the worker.
func (h *Hub) handleControl(ctx context.Context, msg model.ControlMessage) {
	h.controlMessages.Add(1)

	if err := h.store.InsertTelemetry(ctx, &msg); err != nil {
		h.logger.Warn("failed to persist telemetry",
			"node_id", msg.NodeID, "error", err)
	}
	if err := h.store.UpsertNodeStatus(ctx, &msg); err != nil {
		h.logger.Warn("failed to update node status",
			"node_id", msg.NodeID, "error", err)
	}

	if msg.Type == model.ControlAlert {
		h.logger.Warn("node alert",
			"node_id", msg.NodeID,
			"confidence", msg.Confidence,
			"battery", msg.Battery,
		)
	}

	h.sink.Publish(events.ControlReceived{
		NodeID:  msg.NodeID,
		Type:    msg.Type,
		Battery: msg.Battery,
		RSSI:    msg.RSSI,
	})
}

// handleArtifact saves the raster, classifies it, records the
// detection, and queues it when only a non-authoritative backend
// answered for something actionable.
func (h *Hub) handleArtifact(ctx context.Context, art *model.Artifact) {
	h.artifacts.Add(1)

	if h.rasterDir != "" {
		path, err := raster.Save(h.rasterDir, art)
		if err != nil {
			h.logger.Warn("failed to save raster",
				"artifact_id", art.ID, "error", err)
		} else {
			art.RasterPath = path
		}
	}

	h.sink.Publish(events.ArtifactReassembled{
		ArtifactID: art.ID,
		NodeID:     art.NodeID,
		Width:      art.Width,
		Height:     art.Height,
		RSSI:       art.RSSI,
	})

	started := time.Now()
	res := h.router.Classify(ctx, art, h.mode, false)
	h.classifications.Add(1)
	h.metrics.ObserveClassification(res.Backend, res.Success, time.Since(started).Seconds())

	h.sink.Publish(events.ClassificationCompleted{
		ArtifactID: art.ID,
		NodeID:     art.NodeID,
		Backend:    res.Backend,
		Label:      res.Label,
		Confidence: res.Confidence,
		Tier:       res.Tier,
		Success:    res.Success,
		Offline:    res.Offline,
	})

	if _, err := h.store.InsertDetection(ctx, art, &res); err != nil {
		h.logger.Warn("failed to record detection",
			"artifact_id", art.ID, "error", err)
	}

	if h.needsConfirmation(res) {
		h.enqueue(ctx, art, res)
	}
}

// needsConfirmation reports whether the result must be re-verified by
// the sync scheduler: any total failure, and any answer from a
// non-authoritative backend whose tier is actionable.
func (h *Hub) needsConfirmation(res model.ClassificationResult) bool {
	if !res.Success {
		return true
	}
	if res.Verification != nil || res.Backend == h.authoritativeName {
		return false
	}
	return res.Tier >= model.TierMedium
}

func (h *Hub) enqueue(ctx context.Context, art *model.Artifact, res model.ClassificationResult) {
	item := &model.QueueItem{
		NodeID:          art.NodeID,
		LocalLabel:      res.Label,
		LocalConfidence: res.Confidence,
		LocalTier:       res.Tier,
		RasterPath:      art.RasterPath,
		Lat:             art.Lat,
		Lon:             art.Lon,
		Battery:         art.Battery,
	}
	if item.RasterPath == "" {
		// No saved file: the raster travels inline, compressed, so the
		// stream header keeps the dimensions with it.
		item.RasterB64 = base64.StdEncoding.EncodeToString(
			wire.Compress(art.Raster, art.Width, art.Height))
	}

	id, err := h.store.EnqueueDetection(ctx, item)
	if err != nil {
		h.logger.Error("failed to queue detection",
			"artifact_id", art.ID, "error", err)
		return
	}
	h.detectionsQueued.Add(1)

	h.logger.Info("detection queued for verification",
		"queue_id", id,
		"node_id", art.NodeID,
		"label", res.Label,
		"tier", res.Tier.String(),
	)
	h.sink.Publish(events.DetectionQueued{
		QueueID: id,
		NodeID:  art.NodeID,
		Label:   res.Label,
		Tier:    res.Tier,
	})
}
