// Package status pushes the core's observable outputs — session status,
// tracking metrics, connection status, latest pose — to local presentation
// clients over a websocket. It is a read-only window: clients send nothing
// but close frames.
package status

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arm-teleop/core/internal/diag"
	"github.com/arm-teleop/core/internal/pubsub"
	"github.com/arm-teleop/core/internal/session"
	"github.com/arm-teleop/core/internal/stream"
	"github.com/arm-teleop/core/internal/tracking"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// close signals writePump to exit. The send channel is never closed: a
// broadcast holding an already-snapshotted client set may still send on it
// after removal, and that send must land in the buffer (or drop), not panic.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Sources bundles the latest-value slots the broadcaster watches. Pose and
// Host are optional; nil slots are simply never reported.
type Sources struct {
	Session    *pubsub.Latest[session.Status]
	Metrics    *pubsub.Latest[tracking.Metrics]
	Connection *pubsub.Latest[stream.Status]
	Pose       *pubsub.Latest[session.Pose]
	Host       *pubsub.Latest[diag.HostLoad]
}

// Broadcaster fans snapshots out to connected clients. Broadcasts are
// throttled: however fast the sources change (the pose slot updates at the
// tracking rate), clients see at most one snapshot per throttle period.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	sources  Sources
	throttle time.Duration
}

func NewBroadcaster(sources Sources, throttle time.Duration) *Broadcaster {
	if throttle <= 0 {
		throttle = 100 * time.Millisecond
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		sources:  sources,
		throttle: throttle,
	}
}

// AddClient registers a connection and immediately sends it the current
// snapshot so new subscribers never start blind.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: b.Snapshot()})
	if err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Snapshot assembles the current observable state from the source slots.
func (b *Broadcaster) Snapshot() Snapshot {
	var snap Snapshot
	if b.sources.Session != nil {
		snap.Session, _ = b.sources.Session.Get()
	}
	if b.sources.Metrics != nil {
		snap.Metrics, _ = b.sources.Metrics.Get()
	}
	if b.sources.Connection != nil {
		snap.Connection, _ = b.sources.Connection.Get()
	}
	if b.sources.Pose != nil {
		if pose, ok := b.sources.Pose.Get(); ok {
			snap.Pose = &pose
		}
	}
	if b.sources.Host != nil {
		if load, ok := b.sources.Host.Get(); ok {
			snap.HostLoad = &load
		}
	}
	return snap
}

// Run watches every source slot and broadcasts a fresh snapshot at most once
// per throttle period while anything changed. Returns when ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	subscribe := func(sub func() (<-chan struct{}, func())) <-chan struct{} {
		if sub == nil {
			return nil
		}
		ch, cancel := sub()
		go func() {
			<-ctx.Done()
			cancel()
		}()
		return ch
	}

	sessionCh := subscribe(signalOf(b.sources.Session))
	metricsCh := subscribe(signalOf(b.sources.Metrics))
	connCh := subscribe(signalOf(b.sources.Connection))
	poseCh := subscribe(signalOf(b.sources.Pose))
	hostCh := subscribe(signalOf(b.sources.Host))

	ticker := time.NewTicker(b.throttle)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sessionCh:
			dirty = true
		case <-metricsCh:
			dirty = true
		case <-connCh:
			dirty = true
		case <-poseCh:
			dirty = true
		case <-hostCh:
			dirty = true
		case <-ticker.C:
			if dirty {
				dirty = false
				b.broadcast()
			}
		}
	}
}

// signalOf adapts a typed latest-value subscription into a bare change
// signal. Returns nil for a nil slot; a nil subscribe function yields a nil
// channel, which blocks forever in Run's select.
func signalOf[T any](l *pubsub.Latest[T]) func() (<-chan struct{}, func()) {
	if l == nil {
		return nil
	}
	return func() (<-chan struct{}, func()) {
		typed, cancel := l.Subscribe()
		signal := make(chan struct{}, 1)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-done:
					return
				case <-typed:
					select {
					case signal <- struct{}{}:
					default:
					}
				}
			}
		}()
		return signal, func() {
			cancel()
			close(done)
		}
	}
}

func (b *Broadcaster) broadcast() {
	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: b.Snapshot()})
	if err != nil {
		log.Printf("[status] marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up; drop it rather than queue stale state.
			log.Printf("[status] client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}
