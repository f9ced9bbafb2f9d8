// Package diag samples host load so operators can tell a sensor stall caused
// by the tracking subsystem from one caused by a saturated device. Samples
// are published as a latest value and never persisted.
package diag

import (
	"context"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arm-teleop/core/internal/pubsub"
)

// HostLoad is one host utilization snapshot.
type HostLoad struct {
	CPUPercent        float64   `json:"cpuPercent"`
	MemoryUsedPercent float64   `json:"memoryUsedPercent"`
	SampledAt         time.Time `json:"sampledAt"`
}

// Sampler periodically publishes HostLoad snapshots.
type Sampler struct {
	interval  time.Duration
	published *pubsub.Latest[HostLoad]
}

func NewSampler(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		interval:  interval,
		published: pubsub.NewLatest[HostLoad](),
	}
}

// Published exposes the latest-value slot carrying host load snapshots.
func (s *Sampler) Published() *pubsub.Latest[HostLoad] { return s.published }

// Run samples until the context is cancelled. Sampling failures are logged
// and skipped; host metrics are diagnostic, never load-bearing.
func (s *Sampler) Run(ctx context.Context) {
	// cpu.Percent computes utilization since the previous call, so prime
	// it once before the loop.
	cpu.Percent(0, false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load, err := sample()
			if err != nil {
				log.Printf("[diag] host sample error: %v", err)
				continue
			}
			s.published.Set(load)
		}
	}
}

func sample() (HostLoad, error) {
	load := HostLoad{SampledAt: time.Now()}

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return HostLoad{}, err
	}
	if len(percents) > 0 {
		load.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostLoad{}, err
	}
	load.MemoryUsedPercent = vm.UsedPercent

	return load, nil
}
