package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aminokad/kaddht/logging"
)

// DefaultPushInterval is how often a live debug connection receives a new
// snapshot.
const DefaultPushInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server exposes a Registry over HTTP: a one-shot JSON snapshot at
// ServeMux's registered path, and a live-updating stream over a
// websocket upgrade on the same handler (spec.md §9's metrics surface,
// SPEC_FULL.md §9's gorilla/websocket wiring).
type Server struct {
	registry Registry
	interval time.Duration
	logger   logging.Logger
}

// NewServer builds a debug server over registry. interval <= 0 uses
// DefaultPushInterval.
func NewServer(registry Registry, interval time.Duration, logger logging.Logger) *Server {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{registry: registry, interval: interval, logger: logger}
}

// ServeHTTP answers a plain GET with one JSON snapshot, or upgrades a
// websocket-handshake request to a connection that receives a fresh
// snapshot every interval until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebsocket(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Snapshot(s.registry))
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("metrics: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteJSON(Snapshot(s.registry)); err != nil {
			s.logger.Debug("metrics: websocket write failed", "error", err)
			return
		}
	}
}
