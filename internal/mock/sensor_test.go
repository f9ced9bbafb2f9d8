package mock

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/arm-teleop/core/internal/session"
)

// fakeClock lets tests advance sensor time manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) read() time.Time         { return c.now }

func newTestSensor(t *testing.T, opts SensorOptions) (*Sensor, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	opts.Clock = clk.read
	s := NewSensor(opts)
	if err := s.Create(session.SensorConfig{TargetRateHz: 60}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AttachSurface(); err != nil {
		t.Fatalf("AttachSurface: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	return s, clk
}

func TestSensorRateLimit(t *testing.T) {
	s, clk := newTestSensor(t, SensorOptions{})

	if _, err := s.Poll(); !errors.Is(err, session.ErrNoUpdate) {
		t.Fatalf("poll with no elapsed time: err = %v, want ErrNoUpdate", err)
	}

	clk.advance(17 * time.Millisecond)
	res, err := s.Poll()
	if err != nil {
		t.Fatalf("poll after interval: %v", err)
	}
	if !res.TrackingActive {
		t.Error("steady pattern should report active tracking")
	}
	if res.TimestampMs <= 0 {
		t.Errorf("TimestampMs = %v, want > 0", res.TimestampMs)
	}

	// Immediately polling again is too soon.
	if _, err := s.Poll(); !errors.Is(err, session.ErrNoUpdate) {
		t.Fatalf("immediate re-poll: err = %v, want ErrNoUpdate", err)
	}
}

func TestSensorTrajectoryOnCircle(t *testing.T) {
	s, clk := newTestSensor(t, SensorOptions{Radius: 0.25})

	for i := 0; i < 50; i++ {
		clk.advance(50 * time.Millisecond)
		res, err := s.Poll()
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		x := float64(res.Pose.Position[0])
		z := float64(res.Pose.Position[2])
		r := math.Hypot(x, z)
		if math.Abs(r-0.25) > 1e-3 {
			t.Fatalf("poll %d: radius = %v, want 0.25", i, r)
		}
		q := res.Pose.Orientation
		norm := math.Sqrt(float64(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3]))
		if math.Abs(norm-1) > 1e-3 {
			t.Fatalf("poll %d: quaternion norm = %v, want 1", i, norm)
		}
	}
}

func TestSensorStallPattern(t *testing.T) {
	s, clk := newTestSensor(t, SensorOptions{Pattern: "stall", StallPeriod: 10, StallLength: 3})

	var delivered, skipped int
	for i := 0; i < 20; i++ {
		clk.advance(17 * time.Millisecond)
		_, err := s.Poll()
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, session.ErrNoUpdate):
			skipped++
		default:
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if delivered != 14 || skipped != 6 {
		t.Errorf("delivered = %d, skipped = %d, want 14 and 6", delivered, skipped)
	}
}

func TestSensorDyingPattern(t *testing.T) {
	s, clk := newTestSensor(t, SensorOptions{Pattern: "dying", DieAfter: 5})

	for i := 0; i < 5; i++ {
		clk.advance(17 * time.Millisecond)
		if _, err := s.Poll(); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	clk.advance(17 * time.Millisecond)
	if _, err := s.Poll(); !errors.Is(err, session.ErrSensorGone) {
		t.Fatalf("poll after death: err = %v, want ErrSensorGone", err)
	}
}

func TestSensorLifecycleGuards(t *testing.T) {
	s := NewSensor(SensorOptions{})
	if _, err := s.Poll(); !errors.Is(err, session.ErrSensorGone) {
		t.Errorf("poll before Create: err = %v, want ErrSensorGone", err)
	}
	if err := s.Create(session.SensorConfig{TargetRateHz: 60}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, session.ErrSensorGone) {
		t.Errorf("Resume before AttachSurface: err = %v, want ErrSensorGone", err)
	}
	if _, err := s.Poll(); !errors.Is(err, session.ErrNoUpdate) {
		t.Errorf("poll while not running: err = %v, want ErrNoUpdate", err)
	}
	s.Close()
	if _, err := s.Poll(); !errors.Is(err, session.ErrSensorGone) {
		t.Errorf("poll after Close: err = %v, want ErrSensorGone", err)
	}
}

func TestSensorPauseStopsDelivery(t *testing.T) {
	s, clk := newTestSensor(t, SensorOptions{})
	clk.advance(17 * time.Millisecond)
	if _, err := s.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	s.Pause()
	clk.advance(time.Second)
	if _, err := s.Poll(); !errors.Is(err, session.ErrNoUpdate) {
		t.Fatalf("poll while paused: err = %v, want ErrNoUpdate", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	clk.advance(17 * time.Millisecond)
	if _, err := s.Poll(); err != nil {
		t.Fatalf("poll after resume: %v", err)
	}
}

func TestControlPadAxesInRange(t *testing.T) {
	pad := NewControlPad()
	for i := 0; i < 100; i++ {
		c := pad.Read()
		for axis, v := range c.Axes {
			if v < -1 || v > 1 {
				t.Fatalf("read %d axis %d = %v, out of [-1, 1]", i, axis, v)
			}
		}
	}
}
