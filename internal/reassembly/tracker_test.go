package reassembly

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func protoFrame(nodeHash uint16, subtype byte, sessionID uint16, payload []byte) []byte {
	packet := []byte{wire.Magic0, wire.Magic1, 0, 0, subtype, 0, 0}
	binary.BigEndian.PutUint16(packet[2:4], nodeHash)
	binary.BigEndian.PutUint16(packet[5:7], sessionID)
	return append(packet, payload...)
}

func startFrame(nodeHash, sessionID uint16, expected, totalSize int, nodeID string) []byte {
	payload := []byte{byte(expected), 0, 0}
	binary.BigEndian.PutUint16(payload[1:3], uint16(totalSize))
	payload = append(payload, []byte(nodeID)...)
	payload = append(payload, 0)
	return protoFrame(nodeHash, wire.SubtypeStart, sessionID, payload)
}

func dataFrame(nodeHash, sessionID uint16, seq int, chunk []byte) []byte {
	return protoFrame(nodeHash, wire.SubtypeData, sessionID, append([]byte{byte(seq)}, chunk...))
}

func endFrame(nodeHash, sessionID uint16, sent int, meta wire.TransferMetadata) []byte {
	blob, _ := json.Marshal(meta)
	return protoFrame(nodeHash, wire.SubtypeEnd, sessionID, append([]byte{byte(sent)}, blob...))
}

// chunkStream splits a compressed stream into n roughly equal chunks.
func chunkStream(stream []byte, n int) [][]byte {
	size := (len(stream) + n - 1) / n
	var chunks [][]byte
	for i := 0; i < len(stream); i += size {
		end := min(i+size, len(stream))
		chunks = append(chunks, stream[i:end])
	}
	return chunks
}

func at(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTrackerCompleteTransfer(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	tr := NewTracker(WithLogger(quietLogger()), WithClock(at(base)))

	pixels := make([]byte, 16*16)
	for i := range pixels {
		pixels[i] = byte(i % 16 * 17)
	}
	stream := wire.Compress(pixels, 16, 16)
	chunks := chunkStream(stream, 4)

	if em := tr.Ingest(model.Frame{Payload: startFrame(0xA1B2, 7, len(chunks), len(stream), "ridge-03"), RSSI: -90, ReceivedAt: base}); em.Kind != EmissionNone {
		t.Fatalf("start emission kind = %v, want EmissionNone", em.Kind)
	}
	for i, c := range chunks {
		if em := tr.Ingest(model.Frame{Payload: dataFrame(0xA1B2, 7, i, c), RSSI: -90, ReceivedAt: base}); em.Kind != EmissionNone {
			t.Fatalf("data %d emission kind = %v, want EmissionNone", i, em.Kind)
		}
	}

	meta := wire.TransferMetadata{Confidence: 87, Lat: -3.4621, Lon: -62.2158, Battery: 73}
	em := tr.Ingest(model.Frame{Payload: endFrame(0xA1B2, 7, len(chunks), meta), RSSI: -88, ReceivedAt: base.Add(time.Second)})
	if em.Kind != EmissionArtifact {
		t.Fatalf("end emission kind = %v (reason %q), want EmissionArtifact", em.Kind, em.DropReason)
	}

	art := em.Artifact
	if art.NodeID != "ridge-03" {
		t.Errorf("NodeID = %q, want ridge-03", art.NodeID)
	}
	if len(art.Raster) != 256 || art.Width != 16 || art.Height != 16 {
		t.Errorf("raster = %d bytes %dx%d, want 256 bytes 16x16", len(art.Raster), art.Width, art.Height)
	}
	if art.LocalConfidence != 87 || art.Battery != 73 || art.RSSI != -88 {
		t.Errorf("metadata = conf %d bat %d rssi %d", art.LocalConfidence, art.Battery, art.RSSI)
	}
	if art.ID == "" {
		t.Error("artifact ID is empty")
	}
	if !art.CapturedAt.Equal(base) {
		t.Errorf("CapturedAt = %v, want the START frame time %v", art.CapturedAt, base)
	}
	if tr.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d after completion, want 0", tr.ActiveSessions())
	}
}

func TestTrackerTooMuchLoss(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	tr := NewTracker(WithLogger(quietLogger()), WithClock(at(base)))

	stream := wire.Compress(make([]byte, 16*16), 16, 16)
	chunks := chunkStream(stream, 4)

	tr.Ingest(model.Frame{Payload: startFrame(1, 1, 4, len(stream), "n1"), ReceivedAt: base})
	// Deliver 3 of 4: 0.75 is below the 0.8 threshold.
	for i := 0; i < 3; i++ {
		tr.Ingest(model.Frame{Payload: dataFrame(1, 1, i, chunks[min(i, len(chunks)-1)]), ReceivedAt: base})
	}

	em := tr.Ingest(model.Frame{Payload: endFrame(1, 1, 4, wire.TransferMetadata{}), ReceivedAt: base})
	if em.Kind != EmissionDropped || em.DropReason != DropTooMuchLoss {
		t.Errorf("emission = %v %q, want EmissionDropped %q", em.Kind, em.DropReason, DropTooMuchLoss)
	}
	if tr.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions() = %d after drop, want 0", tr.ActiveSessions())
	}
}

func TestTrackerDuplicateDataIdempotent(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	tr := NewTracker(WithLogger(quietLogger()), WithClock(at(base)), WithThreshold(1.0))

	stream := wire.Compress(make([]byte, 8*8), 8, 8)
	chunks := chunkStream(stream, 2)

	tr.Ingest(model.Frame{Payload: startFrame(2, 9, len(chunks), len(stream), "n2"), ReceivedAt: base})
	for i, c := range chunks {
		tr.Ingest(model.Frame{Payload: dataFrame(2, 9, i, c), ReceivedAt: base})
		// Resend each chunk; the duplicate must not disturb the count
		// or the assembled stream.
		tr.Ingest(model.Frame{Payload: dataFrame(2, 9, i, c), ReceivedAt: base})
	}

	em := tr.Ingest(model.Frame{Payload: endFrame(2, 9, len(chunks), wire.TransferMetadata{}), ReceivedAt: base})
	if em.Kind != EmissionArtifact {
		t.Fatalf("emission kind = %v (reason %q), want EmissionArtifact", em.Kind, em.DropReason)
	}
	if len(em.Artifact.Raster) != 64 {
		t.Errorf("raster = %d bytes, want 64", len(em.Artifact.Raster))
	}
}

func TestTrackerSessionEviction(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	now := base
	tr := NewTracker(
		WithLogger(quietLogger()),
		WithTimeout(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	stream := wire.Compress(make([]byte, 8*8), 8, 8)
	tr.Ingest(model.Frame{Payload: startFrame(3, 1, 1, len(stream), "n3"), ReceivedAt: base})
	if tr.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions() = %d, want 1", tr.ActiveSessions())
	}

	// A DATA frame at 29s keeps the transfer alive but must not extend
	// its lifetime: the timeout counts from START.
	now = base.Add(29 * time.Second)
	tr.Ingest(model.Frame{Payload: dataFrame(3, 1, 0, []byte{1, 2}), ReceivedAt: now})
	if tr.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions() = %d before timeout, want 1", tr.ActiveSessions())
	}

	// Past 30s from START the session must be gone before the END
	// frame is considered.
	now = base.Add(31 * time.Second)
	em := tr.Ingest(model.Frame{Payload: endFrame(3, 1, 1, wire.TransferMetadata{}), ReceivedAt: now})
	if em.Kind != EmissionDropped || em.DropReason != DropUnknownSession {
		t.Errorf("emission = %v %q, want EmissionDropped %q", em.Kind, em.DropReason, DropUnknownSession)
	}
}

func TestTrackerControlMessages(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	tr := NewTracker(WithLogger(quietLogger()), WithClock(at(base)))

	em := tr.Ingest(model.Frame{
		Payload:    []byte(`{"type":"alert","node_id":"ridge-03","confidence":91,"battery":68}`),
		RSSI:       -95,
		ReceivedAt: base,
	})
	if em.Kind != EmissionControl {
		t.Fatalf("emission kind = %v, want EmissionControl", em.Kind)
	}
	if em.Control.Type != model.ControlAlert || em.Control.Confidence != 91 || em.Control.RSSI != -95 {
		t.Errorf("control = %+v", em.Control)
	}
}

func TestTrackerDropReasons(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		frames [][]byte
		want   string
	}{
		{
			name:   "garbage packet",
			frames: [][]byte{{0x01, 0x02, 0x03}},
			want:   DropUnrecognized,
		},
		{
			name:   "data without start",
			frames: [][]byte{dataFrame(9, 9, 0, []byte{1, 2, 3})},
			want:   DropUnknownSession,
		},
		{
			name:   "end without start",
			frames: [][]byte{endFrame(9, 9, 1, wire.TransferMetadata{})},
			want:   DropUnknownSession,
		},
		{
			name: "undecodable stream",
			frames: [][]byte{
				startFrame(9, 9, 1, 4, "n9"),
				dataFrame(9, 9, 0, []byte{0xFF, 0xFF, 0xFF, 0xFF}),
				endFrame(9, 9, 1, wire.TransferMetadata{}),
			},
			want: DropDecompressFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := NewTracker(WithLogger(quietLogger()), WithClock(at(base)))
			var em Emission
			for _, f := range tt.frames {
				em = tr.Ingest(model.Frame{Payload: f, ReceivedAt: base})
			}
			if em.Kind != EmissionDropped || em.DropReason != tt.want {
				t.Errorf("emission = %v %q, want EmissionDropped %q", em.Kind, em.DropReason, tt.want)
			}
		})
	}
}
