package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// upgrader accepts any origin — this is a localhost-dev surface. A
// production deployment is expected to front this with a reverse proxy
// that enforces origin policy.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSServer is the gorilla/websocket-backed Server implementation: it
// accepts connections on a net/http handler, registers them by the
// participant id carried on their first frame, and fans broadcasts out
// to a concurrent connection registry.
type WSServer struct {
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*wsConnection // participant id -> connection

	onConn func(conn Transport)
}

// NewWSServer constructs a server ready to be wired into an HTTP mux via
// Handler().
func NewWSServer(logger *slog.Logger) *WSServer {
	return &WSServer{
		logger:      logger,
		connections: make(map[string]*wsConnection),
	}
}

func (s *WSServer) OnConnection(h func(conn Transport)) { s.onConn = h }

// Handler upgrades the request to a websocket and hands the new,
// not-yet-registered connection to the OnConnection callback. The first
// frame's sender establishes the participant id for this connection via
// Register, called by the router/broker layer that consumes OnMessage.
func (s *WSServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		wc := newWSConnection(conn, s.logger)
		if s.onConn != nil {
			s.onConn(wc)
		}
		wc.readLoop()
	}
}

func (s *WSServer) Register(participantID string, conn Transport) {
	wc, ok := conn.(*wsConnection)
	if !ok {
		return
	}
	s.mu.Lock()
	s.connections[participantID] = wc
	s.mu.Unlock()
}

func (s *WSServer) Unregister(participantID string) {
	s.mu.Lock()
	delete(s.connections, participantID)
	s.mu.Unlock()
}

// Broadcast computes nothing under a session mutex itself — callers
// (the router) are responsible for calling this only after releasing
// their own session lock. A send failure to one recipient is logged and
// does not abort delivery to the rest.
func (s *WSServer) Broadcast(ctx context.Context, env protocol.Envelope, filter BroadcastFilter) {
	s.mu.RLock()
	targets := make([]*wsConnection, 0, len(s.connections))
	ids := make([]string, 0, len(s.connections))
	for pid, conn := range s.connections {
		if filter == nil || filter(pid) {
			targets = append(targets, conn)
			ids = append(ids, pid)
		}
	}
	s.mu.RUnlock()

	for i, conn := range targets {
		if err := conn.Send(ctx, env); err != nil {
			s.logger.Warn("broadcast send failed", "participant_id", ids[i], "error", err)
		}
	}
}

func (s *WSServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, conn := range s.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.connections = make(map[string]*wsConnection)
	return firstErr
}
