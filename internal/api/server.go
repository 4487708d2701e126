// Package api exposes the touch pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resonance/internal/health"
	"resonance/internal/metrics"
	"resonance/internal/orchestrator"
)

// Options configures the HTTP listener.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Checker backs /readyz. When nil only the pipeline status is checked.
	Checker *health.Checker
}

// DefaultOptions returns listener defaults.
func DefaultOptions() Options {
	return Options{
		Addr:            "127.0.0.1:7717",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server routes HTTP requests to an orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *metrics.Registry
	logger   *slog.Logger
	opts     Options
	checker  *health.Checker
	engine   *gin.Engine
}

// New builds the router. registry may be nil, in which case /metrics is
// not served.
func New(orch *orchestrator.Orchestrator, registry *metrics.Registry, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:     orch,
		registry: registry,
		logger:   logger.With("component", "api"),
		opts:     opts,
		checker:  opts.Checker,
		engine:   gin.New(),
	}
	if s.checker == nil {
		s.checker = health.NewChecker()
		s.checker.Register(health.Component{
			Name:     "pipeline",
			Critical: true,
			Check:    health.PipelineCheck(orch.Status),
		})
	}
	s.engine.Use(requestID(), accessLog(s.logger), recovery(s.logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.live)
	s.engine.GET("/readyz", s.ready)
	if s.registry != nil {
		s.engine.GET("/metrics", gin.WrapH(s.registry.HTTPHandler()))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/touch", s.touch)
		v1.GET("/status", s.status)
		v1.GET("/stats", s.stats)
		v1.POST("/disable", s.disable)
		v1.POST("/enable", s.enable)

		v1.GET("/profile", s.exportProfile)
		v1.PUT("/profile", s.importProfile)
		v1.DELETE("/profile/patterns/:id", s.removePattern)
		v1.GET("/personalization/:emotion", s.personalizedSettings)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("api stopped")
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
