// Package server exposes the monitoring engine over HTTP.
//
// Routes:
//
//	POST /mon                                  form endpoint (monitor | parse)
//	GET  /api/v1/traces/{trace}/events         stored events (?from=&to=)
//	POST /api/v1/traces/{trace}/events         push an event, 403 when blocked
//	GET  /api/v1/monitors                      monitor snapshots
//	POST /api/v1/monitors/{id}/reset
//	GET  /api/v1/violations                    (?monitor=)
//	GET  /api/v1/violations/{id}
//	POST /api/v1/violations/{id}/audit
//	POST /api/v1/violations/{id}/remediate
//	GET  /api/v1/kv
//	POST /api/v1/kv                            merge remote knowledge
//	POST /api/v1/remote/formulas               actor registration
//	GET  /metrics
//	GET  /healthz
//
// Every engine access goes through Engine.Submit or Engine.Do, so handlers
// never touch engine state from the HTTP goroutines.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/observability"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server serves the HTTP API of one engine.
type Server struct {
	engine      *engine.Engine
	logger      *zap.Logger
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	metricsPath string
	mux         *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics counts requests in m and serves g at path. An empty path
// disables the metrics endpoint.
func WithMetrics(m *observability.Metrics, g prometheus.Gatherer, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
		s.metricsPath = path
	}
}

// New builds the route table.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: e,
		logger: zap.NewNop(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("POST /mon", "mon", s.handleMon)
	s.handle("GET /api/v1/traces/{trace}/events", "events", s.handleListEvents)
	s.handle("POST /api/v1/traces/{trace}/events", "push", s.handlePushEvent)
	s.handle("GET /api/v1/monitors", "monitors", s.handleMonitors)
	s.handle("POST /api/v1/monitors/{id}/reset", "reset", s.handleResetMonitor)
	s.handle("GET /api/v1/violations", "violations", s.handleViolations)
	s.handle("GET /api/v1/violations/{id}", "violation", s.handleViolation)
	s.handle("POST /api/v1/violations/{id}/audit", "audit", s.handleAudit)
	s.handle("POST /api/v1/violations/{id}/remediate", "remediate", s.handleRemediate)
	s.handle("GET /api/v1/kv", "kv", s.handleKnowledge)
	s.handle("POST /api/v1/kv", "kv_merge", s.handleMergeKnowledge)
	s.handle("POST /api/v1/remote/formulas", "remote", s.handleRemoteFormula)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil && s.metricsPath != "" {
		s.mux.Handle("GET "+s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// handle registers h and counts its responses under route.
func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
		h(rec, r)
		s.metrics.IncHTTPRequest(route, rec.code)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.code),
			zap.Duration("took", time.Since(start)))
	})
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
