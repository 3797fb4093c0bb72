// CLAUDE:SUMMARY Serves the operator HTTP endpoints: health, loop status, subscribers and Prometheus metrics.
// Package admin serves the read-only operator endpoints: liveness, loop
// status, the subscriber list and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Status is a point-in-time view of the watcher.
type Status struct {
	Origin      string    `json:"origin"`
	Phase       string    `json:"phase"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	Primed      bool      `json:"primed"`
	Ticks       int64     `json:"ticks"`
	Seen        int       `json:"seen"`
	LastTick    time.Time `json:"last_tick,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	Subscribers int       `json:"subscribers"`
	Channels    []string  `json:"channels"`
}

// Source is what the server reads from.
type Source interface {
	Status() Status
	Subscribers() []string
}

// Server is the admin HTTP surface.
type Server struct {
	src     Source
	metrics http.Handler
	logger  *slog.Logger
	router  *chi.Mux
}

// NewServer builds the router. metrics may be nil, in which case /metrics
// is not mounted.
func NewServer(src Source, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{src: src, metrics: metrics, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(newIPLimiter(20, 40).middleware)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/subscribers", s.handleSubscribers)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	s.logger.Info("admin: stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.src.Status()
	code := http.StatusOK
	if st.Phase == "failed" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleSubscribers(w http.ResponseWriter, _ *http.Request) {
	subs := s.src.Subscribers()
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(subs), "subscribers": subs})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
