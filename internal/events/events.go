// Package events carries pipeline lifecycle notifications to whatever
// wants them: structured logs today, the dashboard boundary tomorrow.
// Sinks must not block; the pipeline emits events inline.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

// Event is a pipeline notification. Kind returns a stable identifier;
// Attrs returns the event's fields for structured logging.
type Event interface {
	Kind() string
	Attrs() []slog.Attr
}

// Sink receives events.
type Sink interface {
	Publish(Event)
}

// ArtifactReassembled fires when a transfer completes reassembly.
type ArtifactReassembled struct {
	ArtifactID string
	NodeID     string
	Width      int
	Height     int
	RSSI       int
}

// Kind implements Event.
func (ArtifactReassembled) Kind() string { return "artifact.reassembled" }

// Attrs implements Event.
func (e ArtifactReassembled) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("artifact_id", e.ArtifactID),
		slog.String("node_id", e.NodeID),
		slog.Int("width", e.Width),
		slog.Int("height", e.Height),
		slog.Int("rssi", e.RSSI),
	}
}

// ClassificationCompleted fires when the router returns for an
// artifact, successful or not.
type ClassificationCompleted struct {
	ArtifactID string
	NodeID     string
	Backend    string
	Label      string
	Confidence int
	Tier       model.ThreatTier
	Success    bool
	Offline    bool
}

// Kind implements Event.
func (ClassificationCompleted) Kind() string { return "classification.completed" }

// Attrs implements Event.
func (e ClassificationCompleted) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("artifact_id", e.ArtifactID),
		slog.String("node_id", e.NodeID),
		slog.String("backend", e.Backend),
		slog.String("label", e.Label),
		slog.Int("confidence", e.Confidence),
		slog.String("tier", e.Tier.String()),
		slog.Bool("success", e.Success),
		slog.Bool("offline", e.Offline),
	}
}

// DetectionQueued fires when a detection enters the offline queue.
type DetectionQueued struct {
	QueueID int64
	NodeID  string
	Label   string
	Tier    model.ThreatTier
}

// Kind implements Event.
func (DetectionQueued) Kind() string { return "detection.queued" }

// Attrs implements Event.
func (e DetectionQueued) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.Int64("queue_id", e.QueueID),
		slog.String("node_id", e.NodeID),
		slog.String("label", e.Label),
		slog.String("tier", e.Tier.String()),
	}
}

// ControlReceived fires for every accepted control message.
type ControlReceived struct {
	NodeID  string
	Type    string
	Battery int
	RSSI    int
}

// Kind implements Event.
func (ControlReceived) Kind() string { return "control.received" }

// Attrs implements Event.
func (e ControlReceived) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("node_id", e.NodeID),
		slog.String("type", e.Type),
		slog.Int("battery", e.Battery),
		slog.Int("rssi", e.RSSI),
	}
}

// SyncPassCompleted fires after every sync scheduler pass.
type SyncPassCompleted struct {
	Online    bool
	Processed int
	Synced    int
	Failed    int
	Duration  time.Duration
}

// Kind implements Event.
func (SyncPassCompleted) Kind() string { return "sync.completed" }

// Attrs implements Event.
func (e SyncPassCompleted) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("online", e.Online),
		slog.Int("processed", e.Processed),
		slog.Int("synced", e.Synced),
		slog.Int("failed", e.Failed),
		slog.Duration("duration", e.Duration),
	}
}

// SlogSink logs every event at Info level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Publish implements Sink.
func (s *SlogSink) Publish(e Event) {
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, e.Kind(), e.Attrs()...)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// Discard is a Sink that drops everything, for tests.
type Discard struct{}

// Publish implements Sink.
func (Discard) Publish(Event) {}
