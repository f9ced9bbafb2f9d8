// Package tracking turns a stream of pose-update timestamps into a live
// quality signal: update rate, an instantaneous stall flag, and per-sample
// drop flags over a bounded window. It retains no unbounded history.
package tracking

import (
	"github.com/arm-teleop/core/internal/pubsub"
)

const (
	// DefaultWindow is the number of recent update intervals kept for rate
	// and drop-flag computation.
	DefaultWindow = 60

	// DefaultStallThresholdMs is the single-interval gap beyond which the
	// sensor is considered stalled.
	DefaultStallThresholdMs = 100

	// DefaultTargetRateHz is the expected sensor update rate.
	DefaultTargetRateHz = 60
)

// Metrics is a full snapshot of tracking quality. Each accepted update
// produces a fresh Metrics value; fields are never merged across updates.
type Metrics struct {
	UpdatesPerSecond float64 `json:"updatesPerSecond"`
	TrackingActive   bool    `json:"trackingActive"`
	Stalled          bool    `json:"stalled"`
	// DropFlags marks, per interval in the current window (oldest first),
	// whether that interval exceeded 1.5x the expected interval.
	DropFlags []bool `json:"dropFlags,omitempty"`
}

// Monitor computes Metrics from a sequence of update timestamps. It is not
// safe for concurrent use: the session controller serializes RecordUpdate
// and Reset under its own lock, which also guarantees Reset never races an
// in-flight RecordUpdate.
type Monitor struct {
	window           int
	stallThresholdMs float64
	expectedMs       float64

	intervals []float64 // ring storage, oldest at head
	head      int
	count     int

	lastTimestampMs float64
	haveTimestamp   bool

	published *pubsub.Latest[Metrics]
}

// Options configures a Monitor. Zero fields fall back to defaults.
type Options struct {
	Window           int
	StallThresholdMs float64
	TargetRateHz     float64
}

func NewMonitor(opts Options) *Monitor {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.StallThresholdMs <= 0 {
		opts.StallThresholdMs = DefaultStallThresholdMs
	}
	if opts.TargetRateHz <= 0 {
		opts.TargetRateHz = DefaultTargetRateHz
	}
	m := &Monitor{
		window:           opts.Window,
		stallThresholdMs: opts.StallThresholdMs,
		expectedMs:       1000 / opts.TargetRateHz,
		intervals:        make([]float64, opts.Window),
		published:        pubsub.NewLatest[Metrics](),
	}
	m.published.Set(Metrics{})
	return m
}

// RecordUpdate feeds one sensor tick into the monitor and returns the
// recomputed Metrics. The first call after construction or Reset only
// records the timestamp — there is no prior sample to diff against — and
// returns zero metrics.
func (m *Monitor) RecordUpdate(timestampMs float64, active bool) Metrics {
	if !m.haveTimestamp {
		m.lastTimestampMs = timestampMs
		m.haveTimestamp = true
		var metrics Metrics
		m.published.Set(metrics)
		return metrics
	}

	interval := timestampMs - m.lastTimestampMs
	m.lastTimestampMs = timestampMs
	m.push(interval)

	metrics := Metrics{
		TrackingActive: active,
		// A stall must be visible the instant it happens; smoothing the
		// flag through the rolling window would delay detection by up to
		// Window samples.
		Stalled:   interval > m.stallThresholdMs,
		DropFlags: make([]bool, m.count),
	}

	var sum float64
	for i := 0; i < m.count; i++ {
		v := m.at(i)
		sum += v
		metrics.DropFlags[i] = v > 1.5*m.expectedMs
	}
	if mean := sum / float64(m.count); mean > 0 {
		metrics.UpdatesPerSecond = 1000 / mean
	}

	m.published.Set(metrics)
	return metrics
}

// Reset clears all history and republishes zero metrics. Call it whenever
// the sensor is paused: a long idle gap is not a real stall.
func (m *Monitor) Reset() {
	m.head = 0
	m.count = 0
	m.lastTimestampMs = 0
	m.haveTimestamp = false
	m.published.Set(Metrics{})
}

// Published exposes the latest-value slot carrying every Metrics snapshot.
func (m *Monitor) Published() *pubsub.Latest[Metrics] {
	return m.published
}

// push appends an interval, evicting the oldest once the ring is full.
func (m *Monitor) push(v float64) {
	if m.count < m.window {
		m.intervals[(m.head+m.count)%m.window] = v
		m.count++
		return
	}
	m.intervals[m.head] = v
	m.head = (m.head + 1) % m.window
}

// at returns the i-th interval, oldest first.
func (m *Monitor) at(i int) float64 {
	return m.intervals[(m.head+i)%m.window]
}
