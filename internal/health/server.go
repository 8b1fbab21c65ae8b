// Package health serves liveness, readiness, and metrics endpoints, and
// hosts the control API mux.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a component is healthy. A nil error means
// healthy; the error message is surfaced in the readiness response.
type Checker func(ctx context.Context) error

// DegradedChecker reports whether a component is running in a reduced
// mode. Degraded components do not fail readiness.
type DegradedChecker func() bool

// Status values reported by the readiness endpoint.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Response is the readiness payload.
type Response struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Degraded   []string          `json:"degraded,omitempty"`
}

// Server exposes /health, /ready, and /metrics, plus any routes other
// components mount on its mux.
type Server struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	degraded map[string]DegradedChecker

	mux    *http.ServeMux
	srv    *http.Server
	logger *slog.Logger
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the HTTP server listening on the given port.
func NewServer(port int, opts ...Option) *Server {
	s := &Server{
		checkers: make(map[string]Checker),
		degraded: make(map[string]DegradedChecker),
		mux:      http.NewServeMux(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Mux returns the underlying mux so other components can mount routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// RegisterChecker adds a named readiness checker.
func (s *Server) RegisterChecker(name string, check Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = check
}

// RegisterDegraded adds a named degraded-mode checker.
func (s *Server) RegisterDegraded(name string, check DegradedChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded[name] = check
}

// handleHealth is liveness only: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady runs all checkers. Any failing checker returns 503;
// degraded components are reported but keep the endpoint at 200.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checkers[name] = c
	}
	degraded := make(map[string]DegradedChecker, len(s.degraded))
	for name, c := range s.degraded {
		degraded[name] = c
	}
	s.mu.RUnlock()

	resp := Response{
		Status:     StatusReady,
		Components: make(map[string]string, len(checkers)),
	}
	status := http.StatusOK

	for name, check := range checkers {
		if err := check(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = StatusNotReady
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	for name, check := range degraded {
		if check() {
			resp.Degraded = append(resp.Degraded, name)
			if resp.Status == StatusReady {
				resp.Status = StatusDegraded
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.logger.Info("http server starting", slog.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.srv.Shutdown(ctx)
}
