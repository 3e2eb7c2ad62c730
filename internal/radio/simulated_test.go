package radio

import (
	"context"
	"testing"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
	"github.com/timberwatch/timberwatch/internal/wire"
)

func TestSimulatedSourceProducesParseableTraffic(t *testing.T) {
	t.Parallel()

	src := NewSimulatedSource(
		WithSeed(1),
		WithInterval(time.Millisecond),
		WithLossRate(0),
		WithNodes("bench-01"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Frame, 512)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	var frames []model.Frame
	deadline := time.After(5 * time.Second)
	for len(frames) < 100 {
		select {
		case f := <-out:
			frames = append(frames, f)
		case <-deadline:
			t.Fatalf("only %d frames before deadline", len(frames))
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var controls, starts, datas, ends int
	for _, f := range frames {
		if f.RSSI >= -30 || f.RSSI <= -130 {
			t.Errorf("RSSI = %d, want plausible dBm", f.RSSI)
		}
		if !wire.IsProtocolFrame(f.Payload) {
			if _, err := wire.ParseControl(f.Payload, f.RSSI, f.ReceivedAt); err != nil {
				t.Errorf("unparseable control frame: %v", err)
			}
			controls++
			continue
		}
		h, err := wire.ParseHeader(f.Payload)
		if err != nil {
			t.Fatalf("ParseHeader() error = %v", err)
		}
		switch h.Subtype {
		case wire.SubtypeStart:
			starts++
		case wire.SubtypeData:
			datas++
		case wire.SubtypeEnd:
			ends++
		}
	}

	if controls == 0 {
		t.Error("no control traffic produced")
	}
	if starts == 0 || datas == 0 || ends == 0 {
		t.Errorf("transfer frames = %d/%d/%d start/data/end, want all kinds", starts, datas, ends)
	}
}

func TestSimulatedTransferReassembles(t *testing.T) {
	t.Parallel()

	src := NewSimulatedSource(WithSeed(7), WithLossRate(0))
	frames := src.transfer("bench-01", 42)

	if len(frames) < 3 {
		t.Fatalf("len(frames) = %d, want start+data+end", len(frames))
	}

	var stream []byte
	for _, f := range frames[1 : len(frames)-1] {
		data, err := wire.ParseData(f.Payload[wire.HeaderLen:])
		if err != nil {
			t.Fatalf("ParseData() error = %v", err)
		}
		stream = append(stream, data.Chunk...)
	}

	pixels, w, h, err := wire.Decompress(stream)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if w != 64 || h != 48 || len(pixels) != 64*48 {
		t.Errorf("raster = %dx%d %d bytes, want 64x48", w, h, len(pixels))
	}
}

func TestHashNodeIDStable(t *testing.T) {
	t.Parallel()

	if hashNodeID("ridge-01") != hashNodeID("ridge-01") {
		t.Error("hash not deterministic")
	}
	if hashNodeID("ridge-01") == hashNodeID("ridge-02") {
		t.Error("distinct nodes share a hash")
	}
}
