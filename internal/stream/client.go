// Package stream delivers the latest pose and control samples to a remote
// endpoint over a persistent websocket connection. The client is
// deliberately queueless: a sample that cannot be transmitted right now is
// dropped, because a teleoperation channel must reflect the operator's
// current pose, not a backlog of stale ones.
package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arm-teleop/core/internal/pubsub"
	"github.com/arm-teleop/core/internal/session"
)

// ConnState is the connection lifecycle state, owned exclusively by the
// Client and observed through its published status stream.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Failed
)

var connStateNames = map[ConnState]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Failed:       "failed",
}

func (s ConnState) String() string {
	if n, ok := connStateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s ConnState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ConnState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range connStateNames {
		if n == name {
			*s = state
			break
		}
	}
	return nil
}

// Status pairs the connection state with a failure reason. Reason is empty
// unless State is Failed.
type Status struct {
	State  ConnState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 30 * time.Second

	dropLogInterval = 10 * time.Second
)

// Options configures a Client. Zero durations fall back to defaults.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	// InsecureSkipVerify disables TLS certificate verification for wss
	// endpoints. Bench rigs with self-signed certs only.
	InsecureSkipVerify bool
}

// Client owns one outbound connection. Connect is asynchronous; SendPose and
// SendControl transmit only while Connected and silently drop otherwise.
// There is no internal retry — reconnection policy belongs to the caller,
// driven by the published status stream.
//
// All methods are safe for concurrent use. Writes are serialized by a
// dedicated write mutex, which preserves per-kind FIFO ordering on the wire.
type Client struct {
	endpoint string
	opts     Options

	mu      sync.Mutex // guards conn, state, reason, ping cancel
	writeMu sync.Mutex // serializes all conn writes (samples, pings)
	conn    *websocket.Conn
	state   ConnState
	reason  string
	cancel  context.CancelFunc // stops the ping/read goroutines

	status *pubsub.Latest[Status]

	dropped     int64
	lastDropLog time.Time
}

func NewClient(endpoint string, opts Options) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	c := &Client{
		endpoint: endpoint,
		opts:     opts,
		status:   pubsub.NewLatest[Status](),
	}
	c.status.Set(Status{State: Disconnected})
	return c
}

// Status exposes the published connection status stream.
func (c *Client) Status() *pubsub.Latest[Status] { return c.status }

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect begins a connection attempt. It returns once the attempt is
// issued; completion (Connected or Failed) is observed via the status
// stream. A no-op if already Connecting or Connected.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(Connecting, "")
	c.mu.Unlock()

	go c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	if strings.HasPrefix(c.endpoint, "wss://") && c.opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)

	c.mu.Lock()
	if c.state != Connecting {
		// Disconnect won the race; discard the attempt.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.setStateLocked(Failed, err.Error())
		c.mu.Unlock()
		log.Printf("[stream] dial %s: %v", c.endpoint, err)
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.setStateLocked(Connected, "")
	c.mu.Unlock()

	go c.pingLoop(loopCtx, conn)
	go c.readLoop(conn)
	log.Printf("[stream] connected to %s", c.endpoint)
}

// SendPose transmits a pose sample if Connected; otherwise the sample is
// dropped. Never queues, never retries.
func (c *Client) SendPose(p session.Pose) {
	c.send(newPoseMessage(p))
}

// SendControl transmits a control sample if Connected; otherwise the sample
// is dropped.
func (c *Client) SendControl(ctl session.Control) {
	c.send(newControlMessage(ctl))
}

func (c *Client) send(msg any) {
	c.mu.Lock()
	if c.state != Connected {
		c.recordDropLocked()
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[stream] marshal error: %v", err)
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.fail(conn, err)
	}
}

// Disconnect closes the connection and returns to Disconnected. Idempotent,
// safe from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.state != Disconnected {
		c.setStateLocked(Disconnected, "")
	}
}

// Dropped returns the number of samples discarded while not Connected.
func (c *Client) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// fail transitions to Failed if conn is still the active connection. Stale
// connections (already replaced or disconnected) are ignored so a late
// write error cannot clobber a newer connection's state.
func (c *Client) fail(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil
	c.setStateLocked(Failed, err.Error())
	c.mu.Unlock()

	conn.Close()
	log.Printf("[stream] transport error: %v", err)
}

// pingLoop keeps the connection alive. A ping failure is a transport error
// like any other write failure.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.fail(conn, err)
				return
			}
		}
	}
}

// readLoop drains inbound frames. The remote sends no application messages,
// but reading is what surfaces close frames and connection loss promptly.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			c.fail(conn, err)
			return
		}
	}
}

// recordDropLocked counts a dropped sample and logs at most once per
// dropLogInterval to avoid log spam during a long outage. Caller must hold mu.
func (c *Client) recordDropLocked() {
	c.dropped++
	now := time.Now()
	if c.lastDropLog.IsZero() || now.Sub(c.lastDropLog) >= dropLogInterval {
		log.Printf("[stream] not connected (%s); %d samples dropped so far", c.state, c.dropped)
		c.lastDropLog = now
	}
}

// setStateLocked applies a state change and publishes it. Caller must hold mu.
func (c *Client) setStateLocked(s ConnState, reason string) {
	c.state = s
	c.reason = reason
	c.status.Set(Status{State: s, Reason: reason})
}
