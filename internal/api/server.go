// Package api exposes the HTTP interface for the discovery service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/probekit/recipecrawl/internal/config"
	"github.com/probekit/recipecrawl/internal/discovery"
	"github.com/probekit/recipecrawl/internal/dispatcher"
	"github.com/probekit/recipecrawl/internal/metrics"
	"github.com/probekit/recipecrawl/internal/middleware"
	"github.com/probekit/recipecrawl/internal/runs"
	"github.com/probekit/recipecrawl/internal/site"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	sites      *site.Registry
	registry   *runs.Registry
	dispatcher *dispatcher.Dispatcher
	store      discovery.PermalinkStore
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sites *site.Registry,
	registry *runs.Registry,
	d *dispatcher.Dispatcher,
	store discovery.PermalinkStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sites:      sites,
		registry:   registry,
		dispatcher: d,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sites", s.listSites)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/report", s.getRunReport)
				r.Get("/permalinks", s.getRunPermalinks)
				r.Post("/cancel", s.cancelRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sites": s.sites.Names()})
}

type submitRunRequest struct {
	Site           string  `json:"site"`
	LowerID        *int64  `json:"lower_id"`
	UpperID        *int64  `json:"upper_id"`
	Concurrency    *int    `json:"concurrency"`
	WatchCode      *int    `json:"watch_code"`
	MaxConsecutive *int    `json:"max_consecutive"`
	SkipIDs        []int64 `json:"skip_ids"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Site == "" {
		s.writeError(w, http.StatusBadRequest, "site is required")
		return
	}
	params := runs.Params{
		Site:           req.Site,
		LowerID:        valueOrDefault(req.LowerID, 0),
		UpperID:        valueOrDefault(req.UpperID, 0),
		Concurrency:    valueOrDefault(req.Concurrency, s.cfg.Discovery.Concurrency),
		WatchCode:      valueOrDefault(req.WatchCode, 0),
		MaxConsecutive: valueOrDefault(req.MaxConsecutive, s.cfg.Discovery.MaxConsecutive),
		SkipIDs:        req.SkipIDs,
	}

	rec, err := s.dispatcher.Launch(params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, site.ErrUnknownSite) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": s.registry.List()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getRunReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": rec.ID,
		"status": rec.Status,
		"stats":  rec.Stats,
		"report": rec.Report,
	})
}

func (s *Server) getRunPermalinks(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	permalinks, err := s.store.ListPermalinks(r.Context(), rec.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch permalinks")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     rec.ID,
		"permalinks": permalinks,
	})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if err := s.dispatcher.Cancel(rec.ID); err != nil {
		s.writeError(w, http.StatusConflict, "run is not active")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"run_id": rec.ID, "status": "canceling"})
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (runs.Record, bool) {
	runID := chi.URLParam(r, "run_id")
	rec, err := s.registry.Get(runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return runs.Record{}, false
	}
	return rec, true
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
