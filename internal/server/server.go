// Package server provides the HTTP server for mudra.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration. Recognizer is required; the
// other fields enable optional routes.
type Config struct {
	StaticDir  string
	Recognizer *recognizer.Recognizer
	Store      *store.Store
	Hub        *Hub
	Toggle     api.Toggle
	Logger     *zap.SugaredLogger
}

// Server is the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if rec := s.config.Recognizer; rec != nil {
		classify := api.NewClassifyHandler(rec)
		s.mux.Handle("/api/classify", classify)
		s.mux.Handle("/api/classify/", classify)

		benchmarks := api.NewBenchmarkHandler(rec, s.config.Store, s.config.Logger)
		s.mux.Handle("/api/benchmark", benchmarks)
		s.mux.Handle("/api/benchmarks", benchmarks)
		s.mux.Handle("/api/benchmarks/", benchmarks)

		status := api.NewStatusHandler(rec)
		s.mux.Handle("/api/status", status)
		s.mux.Handle("/api/stats", status)
		s.mux.Handle("/api/stats/", status)

		s.mux.Handle("/api/settings", api.NewSettingsHandler(rec, s.config.Store, s.config.Toggle))
	}

	if s.config.Store != nil {
		emissions := api.NewEmissionsHandler(s.config.Store)
		s.mux.Handle("/api/emissions", emissions)
		s.mux.Handle("/api/emissions/", emissions)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/gestures/stream", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Recognizer != nil {
		response["backend"] = s.config.Recognizer.Status().Status
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Infow("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
