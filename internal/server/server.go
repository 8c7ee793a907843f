// Package server exposes the orchestrator over HTTP: webhook ingestion,
// manual dispatch, run inspection, and cancellation.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/service"
	"github.com/vk/gridci/internal/store"
)

// Server is the HTTP surface over the run service.
type Server struct {
	logger *slog.Logger
	svc    *service.Service
	store  store.Store
	router chi.Router
}

// New wires the routes.
func New(logger *slog.Logger, svc *service.Service, st store.Store) *Server {
	s := &Server{
		logger: logger,
		svc:    svc,
		store:  st,
	}

	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/events/push", s.handlePushEvent)
		r.Post("/workflows/{name}/dispatch", s.handleDispatch)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/jobs", s.handleGetRunJobs)
		r.Post("/runs/{id}/cancel", s.handleCancelRun)
	})
	s.router = r

	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// requestLogger attaches the app logger to the request context and logs
// each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := ctxlog.WithLogger(r.Context(), s.logger)
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("Request handled.",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

// writeJSON renders a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the uniform JSON error shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully and drains in-flight runs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting.", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("Waiting for in-flight runs to finish.")
	s.svc.Wait()
	return nil
}
