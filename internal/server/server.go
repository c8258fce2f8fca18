// Package server exposes range extraction, metrics and health probes over
// HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/extract"
	"github.com/therealutkarshpriyadarshi/logseek/internal/health"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
)

// Routes
const (
	ExtractPath   = "/extract"
	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)

// Response headers describing an extracted range
const (
	HeaderRequestID = "X-Request-ID"
	HeaderFallback  = "X-Logseek-Fallback"
	HeaderOffset    = "X-Logseek-Offset"
	HeaderMode      = "X-Logseek-Mode"
)

// Server serves extraction requests for logs under the allowed directories
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	extractor  *extract.Extractor
	checker    *health.Checker
	collector  *metrics.Collector
	logger     *logging.Logger
	allowed    []string
}

// Options holds the dependencies of a Server
type Options struct {
	Config      config.ServerConfig
	MetricsPath string
	Extractor   *extract.Extractor
	Checker     *health.Checker
	Collector   *metrics.Collector
	Logger      *logging.Logger
}

// New creates a server and registers its routes
func New(opts Options) (*Server, error) {
	allowed, err := resolveDirs(opts.Config.AllowedDirs)
	if err != nil {
		return nil, err
	}

	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	checker := opts.Checker
	if checker == nil {
		checker = health.NewChecker(0, collector)
	}
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = config.DefaultMetricsPath
	}

	s := &Server{
		cfg:       opts.Config,
		router:    chi.NewRouter(),
		extractor: opts.Extractor,
		checker:   checker,
		collector: collector,
		logger:    opts.Logger.WithComponent("server"),
		allowed:   allowed,
	}

	s.router.Use(s.requestID)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)

	s.router.Get(ExtractPath, s.handleExtract)
	s.router.Get(LivenessPath, checker.LivenessHandler())
	s.router.Get(ReadinessPath, checker.ReadinessHandler())
	s.router.Handle(metricsPath, promhttp.HandlerFor(
		collector.Registry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	s.httpServer = &http.Server{
		Addr:        opts.Config.Address,
		Handler:     s.router,
		ReadTimeout: opts.Config.ReadTimeout,
		// ranges of large logs take long to stream, so no write timeout
		// unless configured
		WriteTimeout: opts.Config.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens in the background and reports immediate startup errors
func (s *Server) Start() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().
			Str("address", s.httpServer.Addr).
			Strs("allowed_dirs", s.allowed).
			Msg("Starting extraction server")

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("extraction server error: %w", err)
		}
	}()

	// Wait a bit to see if there are any immediate startup errors
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down extraction server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down extraction server")
		return err
	}
	return nil
}
