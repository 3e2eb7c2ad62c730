// Package wire implements the Guardian node radio protocol: frame
// classification, multi-packet transfer headers, control message
// decoding, and the RLE + 4-bit quantization spectrogram codec.
//
// The wire format is bit-exact and must be preserved for
// interoperability with deployed node firmware:
//
//   - Protocol frames start with the magic bytes 0x46 0x47 ("FG"),
//     followed by a 2-byte node hash, a 1-byte subtype
//     (START=0x10, DATA=0x11, END=0x12), and a 2-byte session id.
//     Multi-byte integers are big-endian.
//   - Anything else is attempted as a JSON control message with a
//     "type" field in {alert, heartbeat, boot}.
//
// Parsing is deliberately tolerant where radio loss makes damage
// routine (truncated rasters, malformed END metadata) and strict where
// corruption would poison a session (magic, header layout).
package wire
