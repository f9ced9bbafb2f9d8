package session

import "errors"

// Sensor errors. ErrNoUpdate is tick-transient: the poll produced nothing
// new and the tick is skipped. ErrSensorGone is resource-fatal: the tracking
// resource was revoked or lost and the session must be stopped and
// restarted. Implementations wrap or return these sentinels; the controller
// classifies everything else as tick-transient.
var (
	ErrNoUpdate   = errors.New("sensor: no update")
	ErrSensorGone = errors.New("sensor: resource unavailable")
)

// SensorConfig is passed to Sensor.Create. The feature toggles disable
// sensing modes this core never consumes; they are a performance
// optimization with no semantic effect.
type SensorConfig struct {
	TargetRateHz         float64
	DisablePlaneFinding  bool
	DisableLightEstimate bool
}

// PollResult is one successful sensor tick. TimestampMs is the capture
// timestamp on the sensor's own clock, in milliseconds. TrackingActive
// reports whether the pose estimate is currently valid; the pose field is
// meaningful only when it is true.
type PollResult struct {
	Pose           Pose
	TrackingActive bool
	TimestampMs    float64
}

// Sensor is the boundary to the host's pose-tracking subsystem. The
// controller is the only caller and serializes all calls; implementations
// do not need to be safe for concurrent use.
type Sensor interface {
	// Create acquires the underlying tracking resource. Called once per
	// start cycle, before any other method.
	Create(cfg SensorConfig) error

	// AttachSurface points the resource at the host's render surface.
	// Tracking cannot be resumed until this has succeeded.
	AttachSurface() error

	// Resume starts or restarts update delivery. A failure here is
	// resource-fatal.
	Resume() error

	// Pause suspends update delivery without releasing the resource.
	Pause()

	// Close releases the resource. Called exactly once per successful
	// Create.
	Close()

	// Poll fetches the next tracking update. Returns ErrNoUpdate when the
	// sensor has nothing new this tick and ErrSensorGone when the resource
	// itself is gone.
	Poll() (PollResult, error)
}
