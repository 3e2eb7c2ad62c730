package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Protocol constants shared with the node firmware. These values must
// not change while nodes in the field speak the current protocol.
const (
	// Magic0 and Magic1 are the two-byte marker opening every
	// multi-packet spectrogram frame.
	Magic0 = 0x46
	Magic1 = 0x47

	// SubtypeStart opens a transfer and declares its shape.
	SubtypeStart = 0x10

	// SubtypeData carries one sequence-numbered chunk.
	SubtypeData = 0x11

	// SubtypeEnd closes a transfer and carries the metadata blob.
	SubtypeEnd = 0x12

	// HeaderLen is the fixed header length after which subtype-specific
	// payload begins: magic(2) + node hash(2) + subtype(1) + session(2).
	HeaderLen = 7

	// minProtocolFrame is the shortest parseable protocol frame: the
	// header plus at least one payload byte.
	minProtocolFrame = 8
)

// Header is the fixed portion of every protocol frame.
type Header struct {
	// NodeHash is a 16-bit hash of the sending node's identifier, used
	// with SessionID to key in-progress transfers.
	NodeHash uint16

	// Subtype is one of SubtypeStart, SubtypeData, SubtypeEnd.
	Subtype byte

	// SessionID identifies one transfer from the sending node.
	SessionID uint16
}

// IsProtocolFrame reports whether the packet looks like a multi-packet
// spectrogram frame. Short or unmarked packets are treated as control
// traffic instead.
func IsProtocolFrame(packet []byte) bool {
	return len(packet) >= minProtocolFrame && packet[0] == Magic0 && packet[1] == Magic1
}

// ParseHeader parses the fixed protocol header.
func ParseHeader(packet []byte) (Header, error) {
	if len(packet) < minProtocolFrame {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(packet))
	}
	if packet[0] != Magic0 || packet[1] != Magic1 {
		return Header{}, ErrBadMagic
	}

	h := Header{
		NodeHash:  binary.BigEndian.Uint16(packet[2:4]),
		Subtype:   packet[4],
		SessionID: binary.BigEndian.Uint16(packet[5:7]),
	}
	switch h.Subtype {
	case SubtypeStart, SubtypeData, SubtypeEnd:
		return h, nil
	default:
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrUnknownSubtype, h.Subtype)
	}
}

// StartPayload is the subtype-specific payload of a START frame.
type StartPayload struct {
	// ExpectedFrames is how many DATA frames the node intends to send.
	ExpectedFrames int

	// TotalSize is the declared compressed transfer size in bytes.
	TotalSize int

	// NodeID is the node's declared identifier string.
	NodeID string
}

// ParseStart parses the payload following the header of a START frame.
func ParseStart(payload []byte) (StartPayload, error) {
	if len(payload) < 3 {
		return StartPayload{}, fmt.Errorf("%w: START needs 3 bytes, got %d", ErrTruncatedPayload, len(payload))
	}

	p := StartPayload{
		ExpectedFrames: int(payload[0]),
		TotalSize:      int(binary.BigEndian.Uint16(payload[1:3])),
	}

	// Node id is NUL-terminated; firmware pads the tail with zeros when
	// the id is shorter than the remaining frame.
	id := payload[3:]
	if idx := bytes.IndexByte(id, 0); idx >= 0 {
		id = id[:idx]
	}
	p.NodeID = string(id)
	return p, nil
}

// DataPayload is the subtype-specific payload of a DATA frame.
type DataPayload struct {
	// Seq is the chunk's sequence number within the transfer.
	Seq int

	// Chunk is the compressed raster fragment.
	Chunk []byte
}

// ParseData parses the payload following the header of a DATA frame.
func ParseData(payload []byte) (DataPayload, error) {
	if len(payload) < 1 {
		return DataPayload{}, fmt.Errorf("%w: DATA needs a sequence byte", ErrTruncatedPayload)
	}
	return DataPayload{Seq: int(payload[0]), Chunk: payload[1:]}, nil
}

// TransferMetadata is the JSON blob carried by END frames. Field names
// are abbreviated on the wire to fit the radio's small frame size.
type TransferMetadata struct {
	// Confidence is the node's local anomaly estimate (0-100).
	Confidence int `json:"conf"`

	// Lat and Lon are the node's GPS fix.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Battery is the node's battery percentage.
	Battery int `json:"bat"`
}

// EndPayload is the subtype-specific payload of an END frame.
type EndPayload struct {
	// SentFrames is how many DATA frames the node reports having sent.
	// Informational only; completeness is judged against the START
	// frame's ExpectedFrames.
	SentFrames int

	// Metadata is the transfer metadata. Malformed metadata yields
	// zeroed defaults rather than failing the transfer, because a
	// mostly-complete spectrogram is still worth classifying.
	Metadata TransferMetadata
}

// ParseEnd parses the payload following the header of an END frame.
func ParseEnd(payload []byte) (EndPayload, error) {
	if len(payload) < 1 {
		return EndPayload{}, fmt.Errorf("%w: END needs a sent-count byte", ErrTruncatedPayload)
	}

	p := EndPayload{SentFrames: int(payload[0])}

	blob := bytes.TrimRight(payload[1:], "\x00")
	if err := json.Unmarshal(blob, &p.Metadata); err != nil {
		p.Metadata = TransferMetadata{}
	}
	return p, nil
}
