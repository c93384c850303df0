// Package httpapi exposes reference resolution over HTTP.
//
// Job names contain slashes, so clients pass them path-escaped:
//
//	GET /jobs/project%2FPR-1/builds/4/reference
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// ReferenceService resolves and looks up reference builds.
type ReferenceService interface {
	Resolve(ctx context.Context, jobName string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error)
	Lookup(ctx context.Context, jobName string, number int, cfg domain.Configuration) (domain.ReferenceBuild, error)
}

// Server serves the reference endpoints.
type Server struct {
	svc    ReferenceService
	cfg    domain.Configuration
	logger Logger
}

// NewServer creates a Server resolving with cfg unless a request overrides it.
func NewServer(svc ReferenceService, cfg domain.Configuration, log Logger) *Server {
	return &Server{svc: svc, cfg: cfg, logger: log}
}

// Router returns the HTTP handler of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs/{job}/builds/{number}", func(r chi.Router) {
		r.Get("/reference", s.getReference)
		r.Post("/reference", s.resolveReference)
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

// getReference returns the stored reference, resolving it when none is stored.
func (s *Server) getReference(w http.ResponseWriter, r *http.Request) {
	job, number, err := buildParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ref, err := s.svc.Lookup(r.Context(), job, number, s.cfg)
	s.respond(w, r, ref, err)
}

// resolveReference always resolves again. The optional JSON body overrides
// settings of the server configuration. An outcome that is already stored
// stays stored.
func (s *Server) resolveReference(w http.ResponseWriter, r *http.Request) {
	job, number, err := buildParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg := s.cfg
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid configuration: %w", err))
		return
	}

	ref, err := s.svc.Resolve(r.Context(), job, number, cfg)
	s.respond(w, r, ref, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, ref domain.ReferenceBuild, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, ref)
		return
	}

	if errors.Is(err, domain.ErrBuildNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}

	s.logger.Error(r.Context(), "failed to resolve reference build", err, map[string]interface{}{
		"path": r.URL.Path,
	})
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func buildParams(r *http.Request) (string, int, error) {
	job, err := url.PathUnescape(chi.URLParam(r, "job"))
	if err != nil || job == "" {
		return "", 0, fmt.Errorf("invalid job name %q", chi.URLParam(r, "job"))
	}

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("invalid build number %q", chi.URLParam(r, "number"))
	}
	return job, number, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info(r.Context(), "request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
