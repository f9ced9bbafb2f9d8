package mock

import (
	"math"
	"math/rand"
	"time"

	"github.com/arm-teleop/core/internal/session"
)

// Clock abstracts time for the simulated sensor so tests can drive it
// deterministically. The zero value of Sensor uses the wall clock.
type Clock func() time.Time

// SensorOptions shapes the simulated device's behavior.
type SensorOptions struct {
	// Pattern selects a motion/failure profile: "steady" (default),
	// "stall" (periodic delivery gaps), "flaky" (periodic tracking loss),
	// or "dying" (resource revoked after DieAfter updates).
	Pattern string

	// StallPeriod and StallLength control the "stall" pattern: every
	// StallPeriod updates the sensor goes quiet for StallLength worth of
	// update intervals. Defaults: 120 and 20.
	StallPeriod int
	StallLength int

	// DieAfter is the update count after which the "dying" pattern starts
	// returning ErrSensorGone. Default: 300.
	DieAfter int

	// Radius of the circular wrist trajectory in meters. Default: 0.25.
	Radius float64

	// Clock overrides the time source. Nil means time.Now.
	Clock Clock
}

// Sensor simulates a handheld tracking device. It traces a circle in the
// horizontal plane with a gentle vertical bob, yawing to face the direction
// of travel, and delivers updates no faster than the configured target
// rate. It implements session.Sensor and, like a real driver, is not safe
// for concurrent use.
type Sensor struct {
	opts SensorOptions

	cfg      session.SensorConfig
	created  bool
	attached bool
	running  bool

	startedAt time.Time
	lastPoll  time.Time
	updates   int
}

func NewSensor(opts SensorOptions) *Sensor {
	if opts.Pattern == "" {
		opts.Pattern = "steady"
	}
	if opts.StallPeriod <= 0 {
		opts.StallPeriod = 120
	}
	if opts.StallLength <= 0 {
		opts.StallLength = 20
	}
	if opts.DieAfter <= 0 {
		opts.DieAfter = 300
	}
	if opts.Radius <= 0 {
		opts.Radius = 0.25
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Sensor{opts: opts}
}

func (s *Sensor) Create(cfg session.SensorConfig) error {
	if cfg.TargetRateHz <= 0 {
		cfg.TargetRateHz = 60
	}
	s.cfg = cfg
	s.created = true
	s.attached = false
	s.running = false
	s.updates = 0
	return nil
}

func (s *Sensor) AttachSurface() error {
	s.attached = true
	return nil
}

func (s *Sensor) Resume() error {
	if !s.created || !s.attached {
		return session.ErrSensorGone
	}
	now := s.opts.Clock()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.lastPoll = now
	s.running = true
	return nil
}

func (s *Sensor) Pause() {
	s.running = false
}

func (s *Sensor) Close() {
	s.created = false
	s.attached = false
	s.running = false
	s.startedAt = time.Time{}
}

func (s *Sensor) Poll() (session.PollResult, error) {
	if !s.created {
		return session.PollResult{}, session.ErrSensorGone
	}
	if !s.running {
		return session.PollResult{}, session.ErrNoUpdate
	}

	now := s.opts.Clock()
	interval := time.Duration(float64(time.Second) / s.cfg.TargetRateHz)
	if now.Sub(s.lastPoll) < interval {
		return session.PollResult{}, session.ErrNoUpdate
	}

	switch s.opts.Pattern {
	case "stall":
		phase := s.updates % s.opts.StallPeriod
		if phase >= s.opts.StallPeriod-s.opts.StallLength {
			// Stay quiet but burn the slot so the gap eventually ends.
			s.updates++
			s.lastPoll = now
			return session.PollResult{}, session.ErrNoUpdate
		}
	case "dying":
		if s.updates >= s.opts.DieAfter {
			return session.PollResult{}, session.ErrSensorGone
		}
	}

	s.lastPoll = now
	s.updates++

	active := true
	if s.opts.Pattern == "flaky" {
		// Lose tracking for a short window every ~4 seconds of updates.
		phase := s.updates % 240
		active = phase < 200
	}

	t := now.Sub(s.startedAt).Seconds()
	res := session.PollResult{
		Pose:           s.poseAt(t),
		TrackingActive: active,
		TimestampMs:    float64(now.Sub(s.startedAt)) / float64(time.Millisecond),
	}
	return res, nil
}

// poseAt evaluates the trajectory at t seconds: a circle of the configured
// radius at wrist height, one revolution every 8 seconds, with a small
// vertical bob and a yaw quaternion tangent to the path.
func (s *Sensor) poseAt(t float64) session.Pose {
	const period = 8.0
	theta := 2 * math.Pi * t / period

	x := s.opts.Radius * math.Cos(theta)
	z := s.opts.Radius * math.Sin(theta)
	y := 1.1 + 0.05*math.Sin(2*theta)

	// Yaw to face the direction of travel: rotation of theta+pi/2 about Y.
	half := (theta + math.Pi/2) / 2
	return session.Pose{
		Position:    [3]float32{float32(x), float32(y), float32(z)},
		Orientation: [4]float32{0, float32(math.Sin(half)), 0, float32(math.Cos(half))},
	}
}

// ControlPad simulates a 4-axis input device: two smooth sine-driven axes
// and two with random walk jitter, all clamped to [-1, 1].
type ControlPad struct {
	clock Clock
	start time.Time
	walk  [2]float64
	rng   *rand.Rand
}

func NewControlPad() *ControlPad {
	return &ControlPad{
		clock: time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Read returns the current axis values.
func (p *ControlPad) Read() session.Control {
	now := p.clock()
	if p.start.IsZero() {
		p.start = now
	}
	t := now.Sub(p.start).Seconds()

	for i := range p.walk {
		p.walk[i] += (p.rng.Float64() - 0.5) * 0.1
		p.walk[i] = math.Max(-1, math.Min(1, p.walk[i]))
	}

	return session.Control{Axes: [4]float32{
		float32(math.Sin(t / 3)),
		float32(0.5 * math.Cos(t / 5)),
		float32(p.walk[0]),
		float32(p.walk[1]),
	}}
}
