package model

import "time"

// Artifact is a completed, decompressed spectrogram raster ready for
// classification. It is created exactly once, when a reassembly session
// finalizes successfully, and is never mutated afterwards.
type Artifact struct {
	// ID is a UUID assigned at finalization so the artifact can be
	// correlated across events, queue rows, and the saved raster file.
	ID string `json:"id"`

	// NodeID is the originating node's declared identifier.
	NodeID string `json:"node_id"`

	// Raster is the decompressed 8-bit grayscale spectrogram,
	// exactly Width*Height bytes (zero-padded or truncated during
	// decompression; radio loss is expected, not an error).
	Raster []byte `json:"-"`

	// Width and Height are the raster dimensions declared in the
	// compressed stream's header.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Lat and Lon are the coordinates from the transfer's metadata blob.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// LocalConfidence is the node's on-device anomaly estimate (0-100)
	// from the transfer's metadata blob.
	LocalConfidence int `json:"local_confidence"`

	// Battery is the node's battery percentage at capture time.
	Battery int `json:"battery"`

	// RSSI is the signal strength of the final frame of the transfer.
	RSSI int `json:"rssi"`

	// CapturedAt is the session's creation time (START frame arrival).
	CapturedAt time.Time `json:"captured_at"`

	// RasterPath is set once the raster has been saved to disk.
	RasterPath string `json:"raster_path,omitempty"`
}
