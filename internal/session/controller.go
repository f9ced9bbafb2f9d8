package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arm-teleop/core/internal/pubsub"
	"github.com/arm-teleop/core/internal/tracking"
)

// Guard errors returned when an operation is attempted from the wrong state.
// Callers treat these as no-ops, not failures — the state machine is
// deliberately forgiving of racy foreground callers.
var ErrNotStopped = errors.New("session: start requires stopped state")

// Controller owns the pose-tracking resource as a strict state machine tied
// to the host application's lifecycle, feeds every successful update into
// the quality monitor, and publishes the latest pose and status.
//
// One mutex serializes every transition and every tick. Transitions are
// read-check-then-write, so foreground calls (Start/Resume/Pause/Stop) and
// the sensor callback domain (Tick) must not interleave mid-transition.
// Holding the same lock across ticks also guarantees that a monitor Reset
// never races an in-flight RecordUpdate, and that no tick fires after Stop
// returns.
type Controller struct {
	mu     sync.Mutex
	sensor Sensor
	cfg    SensorConfig

	state           State
	reason          string
	created         bool // sensor resource live (Create succeeded, Close pending)
	surfaceAttached bool

	monitor *tracking.Monitor
	status  *pubsub.Latest[Status]
	pose    *pubsub.Latest[Pose]

	tickFailures uint64 // transient tick errors since start, diagnostic only
}

func NewController(sensor Sensor, cfg SensorConfig, monitor *tracking.Monitor) *Controller {
	c := &Controller{
		sensor:  sensor,
		cfg:     cfg,
		monitor: monitor,
		status:  pubsub.NewLatest[Status](),
		pose:    pubsub.NewLatest[Pose](),
	}
	c.status.Set(Status{State: Stopped})
	return c
}

// Status exposes the published lifecycle status stream.
func (c *Controller) Status() *pubsub.Latest[Status] { return c.status }

// Pose exposes the published latest-pose stream.
func (c *Controller) Pose() *pubsub.Latest[Pose] { return c.pose }

// Metrics exposes the quality monitor's published metrics stream.
func (c *Controller) Metrics() *pubsub.Latest[tracking.Metrics] {
	return c.monitor.Published()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires and configures the tracking resource. Only valid from
// Stopped; from any other state it returns ErrNotStopped without touching
// the machine. A resource creation failure is terminal: the controller
// lands in Errored and requires a Stop/Start cycle to retry.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Stopped {
		return ErrNotStopped
	}

	if err := c.sensor.Create(c.cfg); err != nil {
		c.setErrorLocked(fmt.Sprintf("create tracking resource: %v", err))
		return err
	}
	c.created = true
	c.tickFailures = 0
	c.setStateLocked(Initializing)
	return nil
}

// AttachSurface hands the render surface to the tracking resource. Valid
// only from Initializing; elsewhere it is a no-op. On success the session
// is Ready but not yet delivering updates — resume after attach, never
// before.
func (c *Controller) AttachSurface() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Initializing {
		return nil
	}

	if err := c.sensor.AttachSurface(); err != nil {
		c.setErrorLocked(fmt.Sprintf("attach surface: %v", err))
		return err
	}
	c.surfaceAttached = true
	c.setStateLocked(Ready)
	return nil
}

// Resume starts update delivery. A no-op unless the state is Ready or
// Paused with the surface attached. A resume failure is resource-fatal.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready && c.state != Paused {
		return nil
	}
	if !c.surfaceAttached {
		return nil
	}

	if err := c.sensor.Resume(); err != nil {
		c.setErrorLocked(fmt.Sprintf("resume tracking: %v", err))
		return err
	}
	c.setStateLocked(Running)
	return nil
}

// Pause suspends update delivery. A no-op unless Running. The monitor is
// reset because the idle gap that follows is not a real stall.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return
	}
	c.sensor.Pause()
	c.monitor.Reset()
	c.setStateLocked(Paused)
}

// SurfaceLost reports that the render surface was torn down or recreated.
// From Ready, Running, or Paused the session regresses to Initializing and
// must reattach before it can run again. Elsewhere it is a no-op.
func (c *Controller) SurfaceLost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Ready, Running, Paused:
	default:
		return
	}

	if c.state == Running {
		c.sensor.Pause()
		c.monitor.Reset()
	}
	c.surfaceAttached = false
	c.setStateLocked(Initializing)
}

// Stop releases the tracking resource and surface and returns the machine
// to Stopped. Safe from any state and idempotent: the underlying Close runs
// exactly once per successful Start. No tick callback fires after Stop
// returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created {
		c.sensor.Close()
		c.created = false
	}
	c.surfaceAttached = false
	c.monitor.Reset()
	c.reason = ""
	if c.state != Stopped {
		c.setStateLocked(Stopped)
	}
}

// Tick polls the sensor once. Called from the sensor callback domain at the
// tracking cadence; a no-op unless Running. Transient poll failures are
// logged and skipped without a state change; only ErrSensorGone transitions
// to Errored.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return
	}

	res, err := c.sensor.Poll()
	if err != nil {
		if errors.Is(err, ErrNoUpdate) {
			return
		}
		if errors.Is(err, ErrSensorGone) {
			c.setErrorLocked(fmt.Sprintf("tracking resource lost: %v", err))
			return
		}
		c.tickFailures++
		log.Printf("[session] tick error (transient, skipped): %v", err)
		return
	}

	c.monitor.RecordUpdate(res.TimestampMs, res.TrackingActive)
	if res.TrackingActive {
		p := res.Pose
		if p.CapturedAt.IsZero() {
			p.CapturedAt = time.Now()
		}
		c.pose.Set(p)
	}
}

// TickFailures returns the count of transient tick errors since the last
// Start. Diagnostic only.
func (c *Controller) TickFailures() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickFailures
}

// setStateLocked applies a transition and publishes it. Caller must hold mu.
func (c *Controller) setStateLocked(s State) {
	log.Printf("[session] %s -> %s", c.state, s)
	c.state = s
	c.status.Set(Status{State: s, Reason: c.reason})
}

// setErrorLocked transitions to Errored with a reason. Caller must hold mu.
func (c *Controller) setErrorLocked(reason string) {
	c.reason = reason
	c.setStateLocked(Errored)
}
