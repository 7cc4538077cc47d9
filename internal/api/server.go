// Package api is the local control plane: health, the loaded command
// table, the remote snapshot, the telemetry tail, and utterance
// injection. It binds to localhost by default and is optional; the
// dispatcher runs fine without it.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voxdeck/voxdeck/internal/dispatch"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey guards /v1/*. Empty leaves the API open; /healthz and
	// /metrics are always open.
	APIKey      string
	Version     string
	SessionID   string
	Fingerprint string
}

// Server is the HTTP control plane.
type Server struct {
	cfg       Config
	pipeline  *dispatch.Pipeline
	remote    *state.Remote
	bus       *telemetry.Bus
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server over the running pipeline.
func New(cfg Config, pipeline *dispatch.Pipeline, remote *state.Remote, bus *telemetry.Bus) *Server {
	return &Server{
		cfg:       cfg,
		pipeline:  pipeline,
		remote:    remote,
		bus:       bus,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/commands", s.handleCommands)
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventsStream)
		r.Get("/stats", s.handleStats)
		r.Post("/say", s.handleSay)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
