package telemetry

import (
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Server exposes a lowering run's /metrics, /healthz, /ir and /lowered
// routes over HTTP, for --metrics-addr.
type Server struct {
	metrics *Metrics
	hub     *Hub

	mu      sync.RWMutex
	irText  string
	lowered string
	ready   bool
}

// NewServer builds a Server backed by m and h.
func NewServer(m *Metrics, h *Hub) *Server {
	return &Server{metrics: m, hub: h}
}

// SetIR updates the text served at /ir, the program as parsed.
func (s *Server) SetIR(text string) {
	s.mu.Lock()
	s.irText = text
	s.mu.Unlock()
}

// SetLowered updates the text served at /lowered, the program after the
// full pipeline has run.
func (s *Server) SetLowered(text string) {
	s.mu.Lock()
	s.lowered = text
	s.mu.Unlock()
}

// SetReady marks the run complete, switching /healthz to 200.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// Router builds the chi.Router serving all of this Server's routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/ir", s.handleIR)
	r.Get("/lowered", s.handleLowered)
	if s.hub != nil {
		r.Get("/events", s.hub.ServeHTTP)
	}
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.WritePrometheus(w)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "not ready\n")
		return
	}
	io.WriteString(w, "ok\n")
}

func (s *Server) handleIR(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	io.WriteString(w, s.irText)
}

func (s *Server) handleLowered(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	io.WriteString(w, s.lowered)
}
