// Package server exposes the runner over HTTP: the streaming chat endpoint,
// thread and file lookups, health checks and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/secboard/internal/observability"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/runner"
)

// Check is a named readiness check.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Service string
	Logger  logging.Logger
	// Metrics enables request instrumentation and the metrics route.
	Metrics     *observability.Metrics
	MetricsPath string
	// Readiness checks back /v1/readiness.
	Readiness []Check
	// Tracer opens a server span per request; runs nest below it.
	Tracer *observability.Tracer
}

// Server is the HTTP front of a Runner.
type Server struct {
	runner      *runner.Runner
	service     string
	logger      logging.Logger
	metrics     *observability.Metrics
	metricsPath string
	readiness   []Check
	tracer      *observability.Tracer
	started     atomic.Bool
}

// New creates a Server for r.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Service:     "secboard",
		Logger:      logging.NoOpLogger{},
		MetricsPath: "/metrics",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		runner:      r,
		service:     opts.Service,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		metricsPath: opts.MetricsPath,
		readiness:   opts.Readiness,
		tracer:      opts.Tracer,
	}
}

// MarkStarted makes /v1/startup report healthy. Run calls it once the
// listener is bound.
func (s *Server) MarkStarted() { s.started.Store(true) }

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "POST /v1/chat", s.handleChat)
	s.handle(mux, "POST /v1/create_thread", s.handleCreateThread)
	s.handle(mux, "GET /v1/get_thread", s.handleGetThread)
	s.handle(mux, "GET /v1/get_image", s.handleGetFile)
	s.handle(mux, "GET /v1/get_image_contents", s.handleListFiles)
	s.handle(mux, "GET /v1/get_file_name", s.handleGetFileName)
	s.handle(mux, "POST /v1/cancel_run", s.handleCancelRun)

	mux.HandleFunc("GET /v1/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /v1/readiness", s.handleReadiness)
	mux.HandleFunc("GET /v1/startup", s.handleStartup)

	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}

	return s.recoverMiddleware(s.logMiddleware(mux))
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Instrument(pattern, handler)
	}
	mux.Handle(pattern, handler)
}

// Run binds addr and serves until ctx is cancelled, then shuts down
// gracefully. A bind failure is returned without marking the server started.
func (s *Server) Run(ctx context.Context, addr string, readHeaderTimeout, shutdownTimeout time.Duration) error {
	if addr == "" {
		return errors.New("addr is required")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.MarkStarted()
	s.logger.Info("http server listening", "service", s.service, "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, id := range s.runner.ActiveRuns() {
			_ = s.runner.Cancel(id)
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error("panic serving request", "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(p))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.tracer != nil {
			ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			defer span.End()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
