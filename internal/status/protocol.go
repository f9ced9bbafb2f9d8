package status

import (
	"github.com/arm-teleop/core/internal/diag"
	"github.com/arm-teleop/core/internal/session"
	"github.com/arm-teleop/core/internal/stream"
	"github.com/arm-teleop/core/internal/tracking"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// Snapshot is the full observable state pushed to the presentation layer:
// session status, tracking quality, connection status, the latest pose, and
// host load. Pose and HostLoad are nil until first published.
type Snapshot struct {
	Session    session.Status   `json:"session"`
	Metrics    tracking.Metrics `json:"metrics"`
	Connection stream.Status    `json:"connection"`
	Pose       *session.Pose    `json:"pose,omitempty"`
	HostLoad   *diag.HostLoad   `json:"hostLoad,omitempty"`
}
