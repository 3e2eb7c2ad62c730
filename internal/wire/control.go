package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/timberwatch/timberwatch/internal/model"
)

// controlEnvelope mirrors the JSON control messages nodes send outside
// the multi-packet protocol. Confidence is a pointer so that an alert
// missing the field can be told apart from one reporting zero.
type controlEnvelope struct {
	Type       string   `json:"type"`
	NodeID     string   `json:"node_id"`
	Confidence *float64 `json:"confidence"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Battery    *int     `json:"battery"`
}

// ParseControl parses a standalone JSON control message. Alerts without
// a confidence field are rejected; heartbeat and boot messages only
// need a type and node id.
func ParseControl(packet []byte, rssi int, receivedAt time.Time) (model.ControlMessage, error) {
	var env controlEnvelope
	if err := json.Unmarshal(packet, &env); err != nil {
		return model.ControlMessage{}, fmt.Errorf("%w: %v", ErrBadControlMessage, err)
	}

	switch env.Type {
	case model.ControlAlert, model.ControlHeartbeat, model.ControlBoot:
	default:
		return model.ControlMessage{}, fmt.Errorf("%w: unknown type %q", ErrBadControlMessage, env.Type)
	}
	if env.NodeID == "" {
		return model.ControlMessage{}, fmt.Errorf("%w: missing node_id", ErrBadControlMessage)
	}
	if env.Type == model.ControlAlert && env.Confidence == nil {
		return model.ControlMessage{}, fmt.Errorf("%w: alert without confidence", ErrBadControlMessage)
	}

	msg := model.ControlMessage{
		Type:       env.Type,
		NodeID:     env.NodeID,
		RSSI:       rssi,
		ReceivedAt: receivedAt,
	}
	if env.Confidence != nil {
		msg.Confidence = *env.Confidence
	}
	if env.Lat != nil {
		msg.Lat = *env.Lat
	}
	if env.Lon != nil {
		msg.Lon = *env.Lon
	}
	if env.Battery != nil {
		msg.Battery = *env.Battery
	}
	return msg, nil
}
