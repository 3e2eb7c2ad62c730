package reassembly

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/wire"
)

// EmissionKind says what, if anything, a frame produced.
type EmissionKind int

const (
	// EmissionNone means the frame was absorbed into session state.
	EmissionNone EmissionKind = iota

	// EmissionControl means the frame was a standalone control message.
	EmissionControl

	// EmissionArtifact means the frame completed a transfer.
	EmissionArtifact

	// EmissionDropped means the frame or its session was discarded.
	EmissionDropped
)

// Drop reasons attached to EmissionDropped results.
const (
	DropUnrecognized     = "unrecognized"
	DropUnknownSession   = "unknown-session"
	DropTooMuchLoss      = "too-much-loss"
	DropDecompressFailed = "decompress-failed"
)

// Emission is the outcome of feeding one frame to the tracker.
type Emission struct {
	Kind       EmissionKind
	Control    model.ControlMessage
	Artifact   *model.Artifact
	DropReason string
}

type sessionKey struct {
	nodeHash  uint16
	sessionID uint16
}

type session struct {
	nodeID    string
	expected  int
	totalSize int
	chunks    map[int][]byte
	startRSSI int
	createdAt time.Time
}

// Tracker reassembles in-flight transfers. It must be driven from a
// single goroutine.
type Tracker struct {
	sessions  map[sessionKey]*session
	timeout   time.Duration
	threshold float64
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets how long a session may live, counted from its
// START frame, before eviction.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.timeout = d }
}

// WithThreshold sets the fraction of declared frames a transfer must
// deliver to be reconstructed.
func WithThreshold(f float64) Option {
	return func(t *Tracker) { t.threshold = f }
}

// WithClock overrides the tracker's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a Tracker with a 30 second session timeout and an
// 80% completion threshold unless options say otherwise.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		sessions:  make(map[sessionKey]*session),
		timeout:   30 * time.Second,
		threshold: 0.8,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ActiveSessions reports how many transfers are currently in flight.
func (t *Tracker) ActiveSessions() int {
	return len(t.sessions)
}

// Ingest feeds one received frame to the tracker and returns what it
// produced. Stale sessions are evicted before the frame is examined,
// so a frame for a session that timed out is reported unknown.
func (t *Tracker) Ingest(frame model.Frame) Emission {
	t.evictStale()

	if !wire.IsProtocolFrame(frame.Payload) {
		msg, err := wire.ParseControl(frame.Payload, frame.RSSI, frame.ReceivedAt)
		if err != nil {
			t.logger.Debug("unrecognized packet", "len", len(frame.Payload), "error", err)
			return Emission{Kind: EmissionDropped, DropReason: DropUnrecognized}
		}
		return Emission{Kind: EmissionControl, Control: msg}
	}

	header, err := wire.ParseHeader(frame.Payload)
	if err != nil {
		t.logger.Debug("bad protocol header", "error", err)
		return Emission{Kind: EmissionDropped, DropReason: DropUnrecognized}
	}

	key := sessionKey{nodeHash: header.NodeHash, sessionID: header.SessionID}
	payload := frame.Payload[wire.HeaderLen:]

	switch header.Subtype {
	case wire.SubtypeStart:
		return t.handleStart(key, payload, frame)
	case wire.SubtypeData:
		return t.handleData(key, payload, frame)
	default:
		return t.handleEnd(key, payload, frame)
	}
}

func (t *Tracker) handleStart(key sessionKey, payload []byte, frame model.Frame) Emission {
	start, err := wire.ParseStart(payload)
	if err != nil {
		t.logger.Debug("malformed start frame", "error", err)
		return Emission{Kind: EmissionDropped, DropReason: DropUnrecognized}
	}

	// A repeated START for a live session restarts it; the node only
	// resends START when it gave up on the previous attempt.
	t.sessions[key] = &session{
		nodeID:    start.NodeID,
		expected:  start.ExpectedFrames,
		totalSize: start.TotalSize,
		chunks:    make(map[int][]byte),
		startRSSI: frame.RSSI,
		createdAt: frame.ReceivedAt,
	}
	t.logger.Debug("transfer started",
		"node_id", start.NodeID,
		"session_id", key.sessionID,
		"expected_frames", start.ExpectedFrames)
	return Emission{Kind: EmissionNone}
}

func (t *Tracker) handleData(key sessionKey, payload []byte, frame model.Frame) Emission {
	sess, ok := t.sessions[key]
	if !ok {
		return Emission{Kind: EmissionDropped, DropReason: DropUnknownSession}
	}

	data, err := wire.ParseData(payload)
	if err != nil {
		t.logger.Debug("malformed data frame", "error", err)
		return Emission{Kind: EmissionDropped, DropReason: DropUnrecognized}
	}

	if _, dup := sess.chunks[data.Seq]; dup {
		return Emission{Kind: EmissionNone}
	}
	sess.chunks[data.Seq] = append([]byte(nil), data.Chunk...)
	return Emission{Kind: EmissionNone}
}

func (t *Tracker) handleEnd(key sessionKey, payload []byte, frame model.Frame) Emission {
	sess, ok := t.sessions[key]
	if !ok {
		return Emission{Kind: EmissionDropped, DropReason: DropUnknownSession}
	}
	delete(t.sessions, key)

	end, err := wire.ParseEnd(payload)
	if err != nil {
		t.logger.Debug("malformed end frame", "error", err)
		return Emission{Kind: EmissionDropped, DropReason: DropUnrecognized}
	}

	received := len(sess.chunks)
	if sess.expected > 0 && float64(received)/float64(sess.expected) < t.threshold {
		t.logger.Info("transfer dropped for loss",
			"node_id", sess.nodeID,
			"session_id", key.sessionID,
			"received", received,
			"expected", sess.expected)
		return Emission{Kind: EmissionDropped, DropReason: DropTooMuchLoss}
	}

	seqs := make([]int, 0, len(sess.chunks))
	for seq := range sess.chunks {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	var stream []byte
	for _, seq := range seqs {
		stream = append(stream, sess.chunks[seq]...)
	}

	pixels, width, height, err := wire.Decompress(stream)
	if err != nil {
		t.logger.Warn("transfer failed to decompress",
			"node_id", sess.nodeID,
			"session_id", key.sessionID,
			"error", err)
		return Emission{Kind: EmissionDropped, DropReason: DropDecompressFailed}
	}

	art := &model.Artifact{
		ID:              uuid.NewString(),
		NodeID:          sess.nodeID,
		Raster:          pixels,
		Width:           width,
		Height:          height,
		Lat:             end.Metadata.Lat,
		Lon:             end.Metadata.Lon,
		LocalConfidence: end.Metadata.Confidence,
		Battery:         end.Metadata.Battery,
		RSSI:            frame.RSSI,
		CapturedAt:      sess.createdAt,
	}
	t.logger.Info("transfer reconstructed",
		"node_id", sess.nodeID,
		"session_id", key.sessionID,
		"received", received,
		"expected", sess.expected,
		"raster", width*height)
	return Emission{Kind: EmissionArtifact, Artifact: art}
}

func (t *Tracker) evictStale() {
	now := t.now()
	for key, sess := range t.sessions {
		if now.Sub(sess.createdAt) > t.timeout {
			t.logger.Info("session evicted",
				"node_id", sess.nodeID,
				"session_id", key.sessionID,
				"received", len(sess.chunks),
				"expected", sess.expected)
			delete(t.sessions, key)
		}
	}
}
