// Package server provides the HTTP control surface for mudra.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/preview"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration. Routes whose dependency is nil are
// not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller api.Controller
	Hub        *preview.Hub
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// Calibration is restored by DELETE /api/calibration. The zero value
	// means geometry.DefaultCalibration.
	Calibration geometry.Calibration
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
	logger *slog.Logger

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/slots", api.Slots)

	if s.config.Controller != nil {
		mapping := api.NewMappingHandler(s.config.Controller)
		r.Get("/api/state", mapping.State)
		r.Post("/api/mapping", mapping.Enter)
		r.Delete("/api/mapping", mapping.Exit)
		r.Put("/api/mapping/slot", mapping.Select)

		calibration := api.NewCalibrationHandler(s.config.Controller, s.config.Store, s.config.Calibration, s.logger)
		r.Get("/api/calibration", calibration.Get)
		r.Put("/api/calibration", calibration.Put)
		r.Delete("/api/calibration", calibration.Reset)
	}

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		r.Get("/api/sessions", sessions.List)
		r.Get("/api/sessions/{id}", sessions.Get)
		r.Delete("/api/sessions/{id}", sessions.Delete)
	}

	if s.config.Hub != nil {
		r.Method(http.MethodGet, "/api/stream", NewStreamHandler(s.config.Hub))
		r.Method(http.MethodGet, "/api/readings", NewReadingsHandler(s.config.Hub, s.logger))
	}

	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler())
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		r.Handle("/*", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = hs
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.http
	s.mu.Unlock()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}
