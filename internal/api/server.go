// Package api serves the operator endpoints that live for the duration of a run:
//   - GET /healthz liveness probe.
//   - GET /status the current run phase as JSON.
//   - GET /metrics Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Run phases reported on /status.
const (
	PhaseStarting   = "starting"
	PhaseHarvesting = "harvesting"
	PhaseIngesting  = "ingesting"
	PhaseDone       = "done"
)

// Status tracks what the run is doing. It is safe for concurrent use.
type Status struct {
	mu      sync.RWMutex
	phase   string
	since   time.Time
	records int
}

// NewStatus starts in PhaseStarting.
func NewStatus() *Status {
	return &Status{phase: PhaseStarting, since: time.Now().UTC()}
}

// Set moves the run to phase and records how many records are in hand.
func (s *Status) Set(phase string, records int) {
	s.mu.Lock()
	s.phase = phase
	s.records = records
	s.since = time.Now().UTC()
	s.mu.Unlock()
}

type statusPayload struct {
	Phase   string    `json:"phase"`
	Since   time.Time `json:"since"`
	Records int       `json:"records"`
}

func (s *Status) snapshot() statusPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statusPayload{Phase: s.phase, Since: s.since, Records: s.records}
}

// Server is the chi router plus the listener that serves it.
type Server struct {
	router chi.Router
	status *Status
	logger *zap.Logger
	srv    *http.Server
}

// NewServer builds the router.
func NewServer(status *Status, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if status == nil {
		status = NewStatus()
	}
	s := &Server{status: status, logger: logger.Named("api")}
	r := chi.NewRouter()
	r.Use(recoverMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger))
	r.Get("/healthz", s.healthz)
	r.Get("/status", s.statusHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r
	return s
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr in the background and returns the bound address.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
