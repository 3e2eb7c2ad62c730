package model

import "time"

// Frame is one radio-delivered packet of bytes together with the link
// quality reading the driver reported for it. Frames are immutable once
// received and are discarded after classification into control,
// spectrogram, or unrecognized traffic.
type Frame struct {
	// Payload is the raw packet body as delivered by the radio.
	Payload []byte

	// RSSI is the received signal strength in dBm (typically -120..-30).
	RSSI int

	// ReceivedAt is when the driver handed the frame to the pipeline.
	ReceivedAt time.Time
}

// Control message types understood by the hub. Anything else in the
// "type" field is rejected as unrecognized traffic.
const (
	// ControlAlert is an on-device anomaly detection from a node.
	ControlAlert = "alert"

	// ControlHeartbeat is a periodic node liveness and battery report.
	ControlHeartbeat = "heartbeat"

	// ControlBoot announces a node (re)start.
	ControlBoot = "boot"
)

// ControlMessage is a structured text message from a sensor node that
// did not require multi-frame reassembly: alerts, heartbeats, and boot
// notices.
type ControlMessage struct {
	// Type is one of ControlAlert, ControlHeartbeat, or ControlBoot.
	Type string `json:"type"`

	// NodeID identifies the sending node (e.g. "GUARDIAN_003").
	NodeID string `json:"node_id"`

	// Confidence is the node's locally estimated anomaly score (0-100).
	// Only meaningful for alerts.
	Confidence float64 `json:"confidence,omitempty"`

	// Lat and Lon are the node's declared coordinates.
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`

	// Battery is the node's remaining battery percentage.
	Battery int `json:"battery,omitempty"`

	// RSSI is copied from the carrying frame.
	RSSI int `json:"rssi,omitempty"`

	// ReceivedAt is copied from the carrying frame.
	ReceivedAt time.Time `json:"received_at"`
}
