// Package server exposes the tracking state over HTTP: a JSON snapshot
// endpoint, a websocket push stream, health, and metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/internal/observability"
	"github.com/signalsfoundry/mission-pnt/model"
)

// streamBuffer is the per-client snapshot queue; a client that falls this
// far behind starts losing intermediate updates rather than stalling the
// publisher.
const streamBuffer = 8

// SnapshotSource is the read surface the server publishes. The state
// container satisfies it.
type SnapshotSource interface {
	Snapshot() (model.Snapshot, bool)
	Subscribe(fn func(model.Snapshot)) func()
}

// Server routes HTTP and websocket clients to the latest published snapshot.
type Server struct {
	source   SnapshotSource
	log      logging.Logger
	metrics  *observability.PNTCollector
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics attaches HTTP instrumentation and mounts /metrics.
func WithMetrics(c *observability.PNTCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// New builds a Server over the given snapshot source.
func New(source SnapshotSource, opts ...Option) *Server {
	s := &Server{
		source: source,
		log:    logging.Noop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", s.handleData)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stream", s.handleStream)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	return s.withRequestID(h)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.EnsureRequestID(r.Context())
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, ok := s.source.Snapshot()
	if !ok {
		writeJSONError(w, http.StatusServiceUnavailable, "no fix data yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Warn(r.Context(), "snapshot encode failed",
			logging.String("error", err.Error()))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleStream upgrades to a websocket and pushes every published snapshot
// until the peer disconnects. The subscription is taken before the upgrade
// completes so no publish can fall between the handshake and the first read.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	snaps := make(chan model.Snapshot, streamBuffer)
	unsubscribe := s.source.Subscribe(func(snap model.Snapshot) {
		select {
		case snaps <- snap:
		default:
		}
	})
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed",
			logging.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Inbound frames are discarded; the read loop exists to notice the peer
	// closing and to service control frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snap, ok := s.source.Snapshot(); ok {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-snaps:
			if err := conn.WriteJSON(snap); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.log.Debug(r.Context(), "stream write failed",
						logging.String("error", err.Error()))
				}
				return
			}
		}
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
