package wire

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

func buildFrame(nodeHash uint16, subtype byte, sessionID uint16, payload []byte) []byte {
	packet := []byte{Magic0, Magic1, 0, 0, subtype, 0, 0}
	binary.BigEndian.PutUint16(packet[2:4], nodeHash)
	binary.BigEndian.PutUint16(packet[5:7], sessionID)
	return append(packet, payload...)
}

func TestIsProtocolFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		packet []byte
		want   bool
	}{
		{
			name:   "valid start frame",
			packet: buildFrame(0xABCD, SubtypeStart, 1, []byte{4, 0, 100, 'n', '1', 0}),
			want:   true,
		},
		{
			name:   "too short",
			packet: []byte{Magic0, Magic1, 0x01},
			want:   false,
		},
		{
			name:   "wrong magic",
			packet: []byte{0x00, 0x47, 0xAB, 0xCD, SubtypeData, 0x00, 0x01, 0x00},
			want:   false,
		},
		{
			name:   "json control message",
			packet: []byte(`{"type":"heartbeat","node_id":"n1"}`),
			want:   false,
		},
		{
			name:   "empty",
			packet: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsProtocolFrame(tt.packet); got != tt.want {
				t.Errorf("IsProtocolFrame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	t.Run("valid header", func(t *testing.T) {
		t.Parallel()

		got, err := ParseHeader(buildFrame(0xBEEF, SubtypeData, 0x0102, []byte{7, 1, 2, 3}))
		if err != nil {
			t.Fatalf("ParseHeader() error = %v", err)
		}
		want := Header{NodeHash: 0xBEEF, Subtype: SubtypeData, SessionID: 0x0102}
		if got != want {
			t.Errorf("ParseHeader() = %+v, want %+v", got, want)
		}
	})

	t.Run("too short", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseHeader([]byte{Magic0, Magic1, 0, 0, SubtypeStart, 0}); !errors.Is(err, ErrFrameTooShort) {
			t.Errorf("ParseHeader() error = %v, want ErrFrameTooShort", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseHeader([]byte{0x00, 0x00, 0, 0, SubtypeStart, 0, 1, 0}); !errors.Is(err, ErrBadMagic) {
			t.Errorf("ParseHeader() error = %v, want ErrBadMagic", err)
		}
	})

	t.Run("unknown subtype", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseHeader(buildFrame(1, 0x7F, 1, []byte{0})); !errors.Is(err, ErrUnknownSubtype) {
			t.Errorf("ParseHeader() error = %v, want ErrUnknownSubtype", err)
		}
	})
}

func TestParseStart(t *testing.T) {
	t.Parallel()

	t.Run("nul terminated node id", func(t *testing.T) {
		t.Parallel()

		payload := []byte{4, 0x01, 0x2C, 'r', 'i', 'd', 'g', 'e', '-', '0', '3', 0, 0, 0}
		got, err := ParseStart(payload)
		if err != nil {
			t.Fatalf("ParseStart() error = %v", err)
		}
		want := StartPayload{ExpectedFrames: 4, TotalSize: 300, NodeID: "ridge-03"}
		if got != want {
			t.Errorf("ParseStart() = %+v, want %+v", got, want)
		}
	})

	t.Run("node id fills payload", func(t *testing.T) {
		t.Parallel()

		got, err := ParseStart([]byte{1, 0, 10, 'n', '1'})
		if err != nil {
			t.Fatalf("ParseStart() error = %v", err)
		}
		if got.NodeID != "n1" {
			t.Errorf("NodeID = %q, want %q", got.NodeID, "n1")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseStart([]byte{4, 0}); !errors.Is(err, ErrTruncatedPayload) {
			t.Errorf("ParseStart() error = %v, want ErrTruncatedPayload", err)
		}
	})
}

func TestParseData(t *testing.T) {
	t.Parallel()

	t.Run("sequence and chunk", func(t *testing.T) {
		t.Parallel()

		got, err := ParseData([]byte{3, 0xDE, 0xAD, 0xBE})
		if err != nil {
			t.Fatalf("ParseData() error = %v", err)
		}
		if got.Seq != 3 {
			t.Errorf("Seq = %d, want 3", got.Seq)
		}
		if len(got.Chunk) != 3 || got.Chunk[0] != 0xDE {
			t.Errorf("Chunk = %x, want deadbe", got.Chunk)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseData(nil); !errors.Is(err, ErrTruncatedPayload) {
			t.Errorf("ParseData() error = %v, want ErrTruncatedPayload", err)
		}
	})
}

func TestParseEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    EndPayload
	}{
		{
			name:    "full metadata",
			payload: append([]byte{4}, []byte(`{"conf":87,"lat":-3.4621,"lon":-62.2158,"bat":73}`)...),
			want: EndPayload{
				SentFrames: 4,
				Metadata:   TransferMetadata{Confidence: 87, Lat: -3.4621, Lon: -62.2158, Battery: 73},
			},
		},
		{
			name:    "malformed metadata zeroes out",
			payload: append([]byte{4}, []byte(`{"conf":87,`)...),
			want:    EndPayload{SentFrames: 4},
		},
		{
			name:    "padded metadata",
			payload: append([]byte{2}, []byte("{\"conf\":10,\"lat\":0,\"lon\":0,\"bat\":55}\x00\x00\x00")...),
			want: EndPayload{
				SentFrames: 2,
				Metadata:   TransferMetadata{Confidence: 10, Battery: 55},
			},
		},
		{
			name:    "empty metadata",
			payload: []byte{1},
			want:    EndPayload{SentFrames: 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEnd(tt.payload)
			if err != nil {
				t.Fatalf("ParseEnd() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEnd() = %+v, want %+v", got, tt.want)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseEnd(nil); !errors.Is(err, ErrTruncatedPayload) {
			t.Errorf("ParseEnd() error = %v, want ErrTruncatedPayload", err)
		}
	})
}

func TestParseControl(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("alert", func(t *testing.T) {
		t.Parallel()

		packet := []byte(`{"type":"alert","node_id":"ridge-03","confidence":91,"lat":-3.46,"lon":-62.21,"battery":68}`)
		got, err := ParseControl(packet, -92, now)
		if err != nil {
			t.Fatalf("ParseControl() error = %v", err)
		}
		want := model.ControlMessage{
			Type: model.ControlAlert, NodeID: "ridge-03", Confidence: 91,
			Lat: -3.46, Lon: -62.21, Battery: 68, RSSI: -92, ReceivedAt: now,
		}
		if got != want {
			t.Errorf("ParseControl() = %+v, want %+v", got, want)
		}
	})

	t.Run("heartbeat without confidence", func(t *testing.T) {
		t.Parallel()

		got, err := ParseControl([]byte(`{"type":"heartbeat","node_id":"n1","battery":80}`), -70, now)
		if err != nil {
			t.Fatalf("ParseControl() error = %v", err)
		}
		if got.Type != model.ControlHeartbeat || got.Battery != 80 {
			t.Errorf("ParseControl() = %+v", got)
		}
	})

	t.Run("alert missing confidence rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseControl([]byte(`{"type":"alert","node_id":"n1"}`), -70, now); !errors.Is(err, ErrBadControlMessage) {
			t.Errorf("ParseControl() error = %v, want ErrBadControlMessage", err)
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseControl([]byte(`{"type":"telemetry","node_id":"n1"}`), -70, now); !errors.Is(err, ErrBadControlMessage) {
			t.Errorf("ParseControl() error = %v, want ErrBadControlMessage", err)
		}
	})

	t.Run("missing node id rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseControl([]byte(`{"type":"boot"}`), -70, now); !errors.Is(err, ErrBadControlMessage) {
			t.Errorf("ParseControl() error = %v, want ErrBadControlMessage", err)
		}
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseControl([]byte{0xFF, 0x00}, -70, now); !errors.Is(err, ErrBadControlMessage) {
			t.Errorf("ParseControl() error = %v, want ErrBadControlMessage", err)
		}
	})
}
