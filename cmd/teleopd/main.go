package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arm-teleop/core/internal/config"
	"github.com/arm-teleop/core/internal/diag"
	"github.com/arm-teleop/core/internal/mock"
	"github.com/arm-teleop/core/internal/session"
	"github.com/arm-teleop/core/internal/status"
	"github.com/arm-teleop/core/internal/stream"
	"github.com/arm-teleop/core/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	endpoint := flag.String("endpoint", "", "Override remote endpoint")
	statusAddr := flag.String("status", "", "Override status server address")
	pattern := flag.String("pattern", "steady", "Simulated sensor pattern (steady, stall, flaky, dying)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *endpoint != "" {
		cfg.Stream.Endpoint = *endpoint
	}
	if *statusAddr != "" {
		cfg.Status.Addr = *statusAddr
	}

	monitor := tracking.NewMonitor(tracking.Options{
		Window:           cfg.Tracking.Window,
		StallThresholdMs: cfg.Tracking.StallThresholdMs,
		TargetRateHz:     cfg.Tracking.TargetRateHz,
	})

	sensor := mock.NewSensor(mock.SensorOptions{Pattern: *pattern})
	ctrl := session.NewController(sensor, session.SensorConfig{
		TargetRateHz:         cfg.Tracking.TargetRateHz,
		DisablePlaneFinding:  cfg.Tracking.DisablePlaneFinding,
		DisableLightEstimate: cfg.Tracking.DisableLightEstimate,
	}, monitor)

	client := stream.NewClient(cfg.Stream.Endpoint, stream.Options{
		HandshakeTimeout:   cfg.Stream.HandshakeTimeout,
		WriteTimeout:       cfg.Stream.WriteTimeout,
		PingInterval:       cfg.Stream.PingInterval,
		InsecureSkipVerify: cfg.Stream.InsecureSkipVerify,
	})

	sampler := diag.NewSampler(cfg.Diag.SampleInterval)

	broadcaster := status.NewBroadcaster(status.Sources{
		Session:    ctrl.Status(),
		Metrics:    ctrl.Metrics(),
		Connection: client.Status(),
		Pose:       ctrl.Pose(),
		Host:       sampler.Published(),
	}, cfg.Status.BroadcastThrottle)
	statusSrv := status.NewServer(cfg.Status.Addr, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sampler.Run(ctx)
	go broadcaster.Run(ctx)
	go func() {
		if err := statusSrv.Run(ctx); err != nil {
			log.Printf("Status server error: %v", err)
		}
	}()

	if err := ctrl.Start(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	if err := ctrl.AttachSurface(); err != nil {
		log.Fatalf("Failed to attach surface: %v", err)
	}
	if err := ctrl.Resume(); err != nil {
		log.Fatalf("Failed to resume tracking: %v", err)
	}
	log.Printf("Tracking at %.0f Hz, streaming to %s", cfg.Tracking.TargetRateHz, cfg.Stream.Endpoint)

	go runTicker(ctx, ctrl, cfg.Tracking.TargetRateHz)
	go runPosePump(ctx, ctrl, client)
	go runControlPump(ctx, client)
	go runReconnect(ctx, client, cfg.Stream.ReconnectBaseDelay, cfg.Stream.ReconnectMaxDelay)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")
	cancel()
	ctrl.Stop()
	client.Disconnect()
}

// runTicker drives the sensor pump. Polling twice per target frame keeps
// latency low without the controller ever busy-waiting; ticks outside the
// Running state are no-ops.
func runTicker(ctx context.Context, ctrl *session.Controller, rateHz float64) {
	interval := time.Duration(float64(time.Second) / (2 * rateHz))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ctrl.Tick()
			if ctrl.State() == session.Errored {
				if st, ok := ctrl.Status().Get(); ok {
					log.Printf("Session errored: %s", st.Reason)
				}
				return
			}
		}
	}
}

// runPosePump forwards published poses to the remote. The subscription
// carries only the latest pose, so a slow or down link never backs up into
// the sensor side; the client drops what it cannot send.
func runPosePump(ctx context.Context, ctrl *session.Controller, client *stream.Client) {
	poses, cancel := ctrl.Pose().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-poses:
			client.SendPose(p)
		}
	}
}

func runControlPump(ctx context.Context, client *stream.Client) {
	pad := mock.NewControlPad()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.SendControl(pad.Read())
		}
	}
}

// runReconnect owns the redial policy. The client itself never retries; this
// loop redials after each failure with exponential backoff, resetting the
// delay once a connection is established.
func runReconnect(ctx context.Context, client *stream.Client, base, max time.Duration) {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = 30 * time.Second
	}

	updates, cancel := client.Status().Subscribe()
	defer cancel()

	delay := base
	client.Connect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-updates:
			switch st.State {
			case stream.Connected:
				delay = base
			case stream.Failed:
				log.Printf("Connection failed (%s), retrying in %s", st.Reason, delay)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > max {
					delay = max
				}
				client.Connect(ctx)
			}
		}
	}
}
