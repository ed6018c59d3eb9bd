package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/procwatch/pkg/logging"
	"github.com/psantana5/procwatch/pkg/watchdog"
)

// SnapshotFunc returns the current state of all supervised workers
type SnapshotFunc func() []watchdog.WorkerState

// StatusResponse is the payload of GET /api/status
type StatusResponse struct {
	StartedAt time.Time              `json:"started_at"`
	Uptime    string                 `json:"uptime"`
	Workers   []watchdog.WorkerState `json:"workers"`
}

// Server exposes the operator-facing status and metrics surface
type Server struct {
	httpServer *http.Server
	snapshot   SnapshotFunc
	startTime  time.Time
	log        *logging.Logger
}

// NewServer creates the status server. metricsHandler may be nil.
func NewServer(addr string, snapshot SnapshotFunc, metricsHandler http.Handler, log *logging.Logger) *Server {
	s := &Server{
		snapshot:  snapshot,
		startTime: time.Now(),
		log:       log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods("GET")
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// ListenAndServe runs the HTTP server until Shutdown
func (s *Server) ListenAndServe() error {
	s.log.Info("Status server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Unhealthy only when every worker is terminally failed
	states := s.snapshot()
	failed := 0
	for _, st := range states {
		if st.Phase == watchdog.PhaseFailed {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(states) > 0 && failed == len(states) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
		return
	}

	status := "healthy"
	if failed > 0 {
		status = "degraded"
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		StartedAt: s.startTime,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Workers:   s.snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("Failed to encode status response", map[string]interface{}{"error": err.Error()})
	}
}
