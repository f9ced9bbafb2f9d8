package session

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of the pose-tracking session. Transitions are
// applied only by the Controller; observers read them through the published
// status stream.
type State int

const (
	Stopped State = iota
	Initializing
	Ready
	Running
	Paused
	Errored
)

var stateNames = map[State]string{
	Stopped:      "stopped",
	Initializing: "initializing",
	Ready:        "ready",
	Running:      "running",
	Paused:       "paused",
	Errored:      "errored",
}

var stateFromName = map[string]State{
	"stopped":      Stopped,
	"initializing": Initializing,
	"ready":        Ready,
	"running":      Running,
	"paused":       Paused,
	"errored":      Errored,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}

// Status pairs the lifecycle state with a human-readable failure reason.
// Reason is empty unless State is Errored.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Pose is a single tracked device pose: position in meters and orientation
// as an (x, y, z, w) quaternion. Immutable once created; only the latest
// value is retained.
type Pose struct {
	Position    [3]float32 `json:"position"`
	Orientation [4]float32 `json:"orientation"`
	CapturedAt  time.Time  `json:"-"`
}

// Control is the latest control-surface reading: a fixed set of normalized
// axis values, two 2-D stick vectors laid out [lx, ly, rx, ry].
type Control struct {
	Axes [4]float32 `json:"axes"`
}
