package stream

import (
	"github.com/arm-teleop/core/internal/session"
)

// MessageType tags an outbound wire message. Each message is a self-contained
// JSON text frame; the remote endpoint treats it as the latest known state
// for that kind. Ordering is guaranteed within a kind, not across kinds.
type MessageType string

const (
	MsgPose    MessageType = "pose"
	MsgControl MessageType = "control"
)

// PoseMessage carries one device pose sample.
type PoseMessage struct {
	Type        MessageType `json:"type"`
	Position    [3]float32  `json:"position"`
	Orientation [4]float32  `json:"orientation"`
}

// ControlMessage carries one control-pad sample.
type ControlMessage struct {
	Type MessageType `json:"type"`
	Axes [4]float32  `json:"axes"`
}

func newPoseMessage(p session.Pose) PoseMessage {
	return PoseMessage{Type: MsgPose, Position: p.Position, Orientation: p.Orientation}
}

func newControlMessage(c session.Control) ControlMessage {
	return ControlMessage{Type: MsgControl, Axes: c.Axes}
}
