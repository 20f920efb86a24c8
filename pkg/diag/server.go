// Package diag serves the controller's diagnostics over HTTP: subsystem
// status, a health check and the Prometheus metrics.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marscolony/airlock-go/pkg/subsystem"
	"github.com/marscolony/airlock-go/pkg/version"
)

// Pool is the part of the subsystem pool the server reads.
type Pool interface {
	Snapshot() []subsystem.Status
}

// ServerConfig holds configuration for the diagnostics server.
type ServerConfig struct {
	Addr    string
	Version string

	Pool Pool

	// Report returns the supervisor's view for /status. Nil omits it.
	Report func() any

	// Metrics serves /metrics. Nil omits the route.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the diagnostics HTTP server.
type Server struct {
	config ServerConfig
	router chi.Router
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a server with its routes registered.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger.With("component", "diag"),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/status/{name}", s.handleSubsystem)
	if s.config.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.config.Metrics)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.server.Serve(ln)
	}()
	s.logger.Info("diagnostics listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// handleHealth reports 200 while every subsystem worker runs.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var down []string
	if s.config.Pool != nil {
		for _, st := range s.config.Pool.Snapshot() {
			if !st.Running || !st.LinkUp {
				down = append(down, st.Name)
			}
		}
	}

	if len(down) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"down":   down,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Version    string             `json:"version"`
	Protocol   string             `json:"protocol"`
	Subsystems []subsystem.Status `json:"subsystems"`
	Supervisor any                `json:"supervisor,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v := s.config.Version
	if v == "" {
		v = "dev"
	}
	resp := statusResponse{
		Version:    v,
		Protocol:   version.Current,
		Subsystems: []subsystem.Status{},
	}
	if s.config.Pool != nil {
		resp.Subsystems = s.config.Pool.Snapshot()
	}
	if s.config.Report != nil {
		resp.Supervisor = s.config.Report()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubsystem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.config.Pool != nil {
		for _, st := range s.config.Pool.Snapshot() {
			if st.Name == name {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown subsystem " + name})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
