// Package admin serves the operator HTTP API: health, Prometheus metrics,
// blocklist statistics, cache purges and on-demand ingestion.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/repos/blocklist"
)

const requestTimeout = 10 * time.Second

// Repository is the part of the blocklist repository the API exposes.
type Repository interface {
	RepoStats(ctx context.Context) blocklist.RepoStats
	Invalidate(ctx context.Context) error
}

// Ingester runs ingestion on demand and reports the most recent run.
type Ingester interface {
	Trigger(ctx context.Context) []domain.IngestResult
	Last() (time.Time, []domain.IngestResult)
}

type Options struct {
	Addr       string
	Repository Repository
	// Ingester is optional; without it the /ingest routes answer 404.
	Ingester Ingester
	Gatherer prometheus.Gatherer
	Logger   log.Logger
}

type Server struct {
	repo     Repository
	ingester Ingester
	gatherer prometheus.Gatherer
	logger   log.Logger

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(opts Options) *Server {
	s := &Server{
		repo:     opts.Repository,
		ingester: opts.Ingester,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes builds the router. It is exported for tests and embedding.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.logRequests)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/stats", s.stats)
		r.Post("/cache/purge", s.purge)
	})
	if s.ingester != nil {
		r.Get("/ingest", s.lastIngest)
		r.Post("/ingest", s.triggerIngest)
	}
	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info(map[string]any{"address": ln.Addr().String()}, "Admin API listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "Admin API stopped")
		}
	}()
	return nil
}

// Address returns the bound address once started.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}, "admin_request")
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.RepoStats(r.Context()))
}

func (s *Server) purge(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Invalidate(r.Context()); err != nil {
		s.logger.Error(map[string]any{"error": err}, "Cache purge failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info(nil, "Decision cache purged")
	w.WriteHeader(http.StatusNoContent)
}

// ingestRun is the JSON view of one ingestion run.
type ingestRun struct {
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Results    []ingestResult `json:"results"`
}

type ingestResult struct {
	Category string `json:"category"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

func newIngestRun(at time.Time, results []domain.IngestResult) ingestRun {
	run := ingestRun{Results: make([]ingestResult, 0, len(results))}
	if !at.IsZero() {
		run.FinishedAt = &at
	}
	for _, res := range results {
		v := ingestResult{Category: string(res.Category), Inserted: res.Inserted}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		run.Results = append(run.Results, v)
	}
	return run
}

func (s *Server) lastIngest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newIngestRun(s.ingester.Last()))
}

// triggerIngest starts a run in the background; runs can take minutes. With
// ?wait=true the handler blocks and returns the run's results.
func (s *Server) triggerIngest(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if r.URL.Query().Get("wait") == "true" {
		results := s.ingester.Trigger(ctx)
		writeJSON(w, http.StatusOK, newIngestRun(time.Time{}, results))
		return
	}
	go s.ingester.Trigger(ctx)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
