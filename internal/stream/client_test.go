package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arm-teleop/core/internal/session"
)

// wsServer is a minimal message-collecting websocket endpoint for tests.
type wsServer struct {
	srv      *httptest.Server
	messages chan []byte
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{
		messages: make(chan []byte, 16),
		conns:    make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ws.messages <- data
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

// recv waits for the next message received by the server.
func (ws *wsServer) recv(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-ws.messages:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive a message")
		return nil
	}
}

// expectSilence asserts the server receives nothing for a short window.
func (ws *wsServer) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-ws.messages:
		t.Fatalf("server unexpectedly received %s", data)
	case <-time.After(150 * time.Millisecond):
	}
}

// waitState blocks until the client's published status reaches want.
func waitState(t *testing.T, c *Client, want ConnState) Status {
	t.Helper()
	ch, cancel := c.Status().Subscribe()
	defer cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case status := <-ch:
			if status.State == want {
				return status
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s (current %s)", want, c.State())
			return Status{}
		}
	}
}

func TestConnectAndSendPose(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitState(t, c, Connected)

	c.SendPose(session.Pose{
		Position:    [3]float32{1, 2, 3},
		Orientation: [4]float32{0, 0, 0, 1},
	})

	var msg PoseMessage
	if err := json.Unmarshal(ws.recv(t), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != MsgPose {
		t.Errorf("type = %q, want %q", msg.Type, MsgPose)
	}
	if msg.Position != [3]float32{1, 2, 3} {
		t.Errorf("position = %v, want [1 2 3]", msg.Position)
	}
	if msg.Orientation != [4]float32{0, 0, 0, 1} {
		t.Errorf("orientation = %v, want [0 0 0 1]", msg.Orientation)
	}
}

func TestSendControl(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitState(t, c, Connected)

	c.SendControl(session.Control{Axes: [4]float32{0.5, -0.5, 0, 1}})

	var msg ControlMessage
	if err := json.Unmarshal(ws.recv(t), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != MsgControl {
		t.Errorf("type = %q, want %q", msg.Type, MsgControl)
	}
	if msg.Axes != [4]float32{0.5, -0.5, 0, 1} {
		t.Errorf("axes = %v", msg.Axes)
	}
}

func TestPoseOrderingPreserved(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitState(t, c, Connected)

	for i := 1; i <= 5; i++ {
		c.SendPose(session.Pose{Position: [3]float32{float32(i), 0, 0}})
	}
	for i := 1; i <= 5; i++ {
		var msg PoseMessage
		if err := json.Unmarshal(ws.recv(t), &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Position[0] != float32(i) {
			t.Fatalf("message %d arrived with x=%v; pose stream reordered", i, msg.Position[0])
		}
	}
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})

	c.SendPose(session.Pose{Position: [3]float32{9, 9, 9}})
	c.SendControl(session.Control{})

	if got := c.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	ws.expectSilence(t)
	if got := c.State(); got != Disconnected {
		t.Errorf("state = %s, want disconnected (sends must not change state)", got)
	}
}

func TestTransportDropTransitionsToFailed(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitState(t, c, Connected)

	// Kill the server side; the client's read loop surfaces the loss.
	conn := <-ws.conns
	conn.Close()

	status := waitState(t, c, Failed)
	if status.Reason == "" {
		t.Error("Failed status carries no reason")
	}

	// Subsequent sends are no-ops until a fresh Connect succeeds.
	before := c.Dropped()
	c.SendPose(session.Pose{})
	if got := c.Dropped(); got != before+1 {
		t.Errorf("Dropped = %d, want %d", got, before+1)
	}
	ws.expectSilence(t)

	c.Connect(context.Background())
	waitState(t, c, Connected)
	c.SendPose(session.Pose{Position: [3]float32{7, 0, 0}})

	var msg PoseMessage
	if err := json.Unmarshal(ws.recv(t), &msg); err != nil {
		t.Fatalf("unmarshal after reconnect: %v", err)
	}
	if msg.Position[0] != 7 {
		t.Errorf("position = %v after reconnect", msg.Position)
	}
}

func TestConnectFailure(t *testing.T) {
	// A server that is immediately closed leaves a refusing address behind.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewClient(url, Options{})
	c.Connect(context.Background())

	status := waitState(t, c, Failed)
	if status.Reason == "" {
		t.Error("dial failure carries no reason")
	}
}

func TestConnectIsNoOpWhileConnected(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitState(t, c, Connected)
	c.Connect(context.Background())

	if got := c.State(); got != Connected {
		t.Errorf("state = %s after redundant Connect, want connected", got)
	}
	// Only one server-side connection was ever opened.
	if got := len(ws.conns); got != 1 {
		t.Errorf("server saw %d connections, want 1", got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})

	c.Disconnect() // never connected
	if got := c.State(); got != Disconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}

	c.Connect(context.Background())
	waitState(t, c, Connected)

	c.Disconnect()
	c.Disconnect()
	if got := c.State(); got != Disconnected {
		t.Errorf("state = %s after double Disconnect, want disconnected", got)
	}
}

func TestDisconnectWinsDialRace(t *testing.T) {
	ws := newWSServer(t)
	c := NewClient(ws.url(), Options{})

	c.Connect(context.Background())
	c.Disconnect()

	// Whatever the dial goroutine concluded, the terminal observation must
	// be Disconnected, not Connected.
	time.Sleep(100 * time.Millisecond)
	if got := c.State(); got == Connected {
		t.Error("state = connected after Disconnect")
	}
}
