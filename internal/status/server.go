package status

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server exposes the broadcaster over HTTP: a websocket stream at /ws and a
// one-shot JSON snapshot at /snapshot. Intended to bind loopback only; it
// carries no auth.
type Server struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	httpSrv     *http.Server
}

func NewServer(addr string, b *Broadcaster) *Server {
	s := &Server{broadcaster: b}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpSrv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[status] upgrade error: %v", err)
		return
	}

	c := s.broadcaster.AddClient(conn)

	// Drain inbound frames; the read error (including a clean close) is the
	// disconnect signal.
	go func() {
		defer s.broadcaster.RemoveClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.broadcaster.Snapshot()); err != nil {
		log.Printf("[status] snapshot encode error: %v", err)
	}
}
