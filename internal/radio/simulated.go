package radio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/wire"
)

// chunkSize is the compressed payload carried per DATA frame. The
// radio's maximum frame is 255 bytes; header plus sequence byte leaves
// room to spare.
const chunkSize = 180

// SimulatedSource fabricates node traffic: heartbeats, alerts, and
// complete spectrogram transfers with occasional frame loss. It exists
// so a hub binary can be exercised end to end on a bench.
type SimulatedSource struct {
	nodes    []string
	interval time.Duration
	lossRate float64
	rng      *rand.Rand
}

// SimOption configures a SimulatedSource.
type SimOption func(*SimulatedSource)

// WithNodes sets the simulated node identifiers.
func WithNodes(nodes ...string) SimOption {
	return func(s *SimulatedSource) { s.nodes = nodes }
}

// WithInterval sets the pause between simulated transmissions.
func WithInterval(d time.Duration) SimOption {
	return func(s *SimulatedSource) { s.interval = d }
}

// WithLossRate sets the probability that any one DATA frame is lost.
func WithLossRate(p float64) SimOption {
	return func(s *SimulatedSource) { s.lossRate = p }
}

// WithSeed makes the simulation deterministic.
func WithSeed(seed int64) SimOption {
	return func(s *SimulatedSource) { s.rng = rand.New(rand.NewSource(seed)) }
}

// NewSimulatedSource creates a source simulating three nodes with 5%
// frame loss, transmitting every two seconds.
func NewSimulatedSource(opts ...SimOption) *SimulatedSource {
	s := &SimulatedSource{
		nodes:    []string{"ridge-01", "ridge-02", "ridge-03"},
		interval: 2 * time.Second,
		lossRate: 0.05,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run implements FrameSource.
func (s *SimulatedSource) Run(ctx context.Context, out chan<- model.Frame) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	sessionID := uint16(s.rng.Intn(1 << 16))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		node := s.nodes[s.rng.Intn(len(s.nodes))]
		switch roll := s.rng.Float64(); {
		case roll < 0.6:
			s.emit(ctx, out, s.heartbeat(node))
		case roll < 0.75:
			s.emit(ctx, out, s.alert(node))
		default:
			sessionID++
			for _, frame := range s.transfer(node, sessionID) {
				s.emit(ctx, out, frame)
			}
		}
	}
}

func (s *SimulatedSource) emit(ctx context.Context, out chan<- model.Frame, frame model.Frame) {
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}

func (s *SimulatedSource) rssi() int {
	return -70 - s.rng.Intn(50)
}

func (s *SimulatedSource) heartbeat(node string) model.Frame {
	payload, _ := json.Marshal(map[string]any{
		"type":    model.ControlHeartbeat,
		"node_id": node,
		"battery": 40 + s.rng.Intn(60),
		"lat":     -3.4 - s.rng.Float64()*0.2,
		"lon":     -62.2 - s.rng.Float64()*0.2,
	})
	return model.Frame{Payload: payload, RSSI: s.rssi(), ReceivedAt: time.Now()}
}

func (s *SimulatedSource) alert(node string) model.Frame {
	payload, _ := json.Marshal(map[string]any{
		"type":       model.ControlAlert,
		"node_id":    node,
		"confidence": 60 + s.rng.Intn(40),
		"battery":    40 + s.rng.Intn(60),
	})
	return model.Frame{Payload: payload, RSSI: s.rssi(), ReceivedAt: time.Now()}
}

// transfer builds one complete spectrogram transfer, dropping DATA
// frames at the configured loss rate.
func (s *SimulatedSource) transfer(node string, sessionID uint16) []model.Frame {
	nodeHash := hashNodeID(node)
	stream := wire.Compress(s.raster(64, 48), 64, 48)

	var chunks [][]byte
	for i := 0; i < len(stream); i += chunkSize {
		end := min(i+chunkSize, len(stream))
		chunks = append(chunks, stream[i:end])
	}

	now := time.Now()
	frames := []model.Frame{{
		Payload:    startFrame(nodeHash, sessionID, len(chunks), len(stream), node),
		RSSI:       s.rssi(),
		ReceivedAt: now,
	}}
	for seq, chunk := range chunks {
		if s.rng.Float64() < s.lossRate {
			continue
		}
		frames = append(frames, model.Frame{
			Payload:    dataFrame(nodeHash, sessionID, seq, chunk),
			RSSI:       s.rssi(),
			ReceivedAt: now,
		})
	}

	meta, _ := json.Marshal(map[string]any{
		"conf": 55 + s.rng.Intn(45),
		"lat":  -3.4 - s.rng.Float64()*0.2,
		"lon":  -62.2 - s.rng.Float64()*0.2,
		"bat":  40 + s.rng.Intn(60),
	})
	frames = append(frames, model.Frame{
		Payload:    endFrame(nodeHash, sessionID, len(chunks), meta),
		RSSI:       s.rssi(),
		ReceivedAt: now,
	})
	return frames
}

// raster synthesizes a chainsaw-like spectrogram: a sustained tonal
// band in the middle frequencies over broadband noise.
func (s *SimulatedSource) raster(width, height int) []byte {
	pixels := make([]byte, width*height)
	bandLow, bandHigh := height/3, 2*height/3
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v := s.rng.Intn(40)
			if row >= bandLow && row < bandHigh {
				v = 180 + s.rng.Intn(60)
			}
			pixels[row*width+col] = byte(v)
		}
	}
	return pixels
}

// hashNodeID reduces a node identifier to the 16-bit hash carried in
// protocol headers, matching the node firmware's algorithm.
func hashNodeID(node string) uint16 {
	var h uint16
	for _, b := range []byte(node) {
		h = h*31 + uint16(b)
	}
	return h
}

func startFrame(nodeHash, sessionID uint16, expected, totalSize int, node string) []byte {
	payload := make([]byte, 3, 3+len(node)+1)
	payload[0] = byte(expected)
	binary.BigEndian.PutUint16(payload[1:3], uint16(totalSize))
	payload = append(payload, []byte(node)...)
	payload = append(payload, 0)
	return protocolFrame(nodeHash, wire.SubtypeStart, sessionID, payload)
}

func dataFrame(nodeHash, sessionID uint16, seq int, chunk []byte) []byte {
	return protocolFrame(nodeHash, wire.SubtypeData, sessionID, append([]byte{byte(seq)}, chunk...))
}

func endFrame(nodeHash, sessionID uint16, sent int, meta []byte) []byte {
	return protocolFrame(nodeHash, wire.SubtypeEnd, sessionID, append([]byte{byte(sent)}, meta...))
}

func protocolFrame(nodeHash uint16, subtype byte, sessionID uint16, payload []byte) []byte {
	packet := []byte{wire.Magic0, wire.Magic1, 0, 0, subtype, 0, 0}
	binary.BigEndian.PutUint16(packet[2:4], nodeHash)
	binary.BigEndian.PutUint16(packet[5:7], sessionID)
	return append(packet, payload...)
}

var _ FrameSource = (*SimulatedSource)(nil)

// String describes the source for logs.
func (s *SimulatedSource) String() string {
	return fmt.Sprintf("simulated(%d nodes, %.0f%% loss)", len(s.nodes), s.lossRate*100)
}
