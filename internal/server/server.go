package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

// Server serves the link API until its context ends.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    logger.Logger
	cfg    *Config
}

// NewServer builds the engine with recovery, request id and access logging
// in front of the routes added by setupRoutes.
func NewServer(cfg *Config, log logger.Logger, setupRoutes func(*gin.Engine)) *Server {
	cfg.SetDefaults()

	mode := gin.ReleaseMode
	if cfg.Debug {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	router := gin.New()
	// The access log needs the request id, so it goes after it.
	router.Use(
		RecoveryMiddleware(log),
		RequestIDLoggerMiddleware(log),
		LoggerMiddleware(log),
	)
	if setupRoutes != nil {
		setupRoutes(router)
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
		cfg: cfg,
	}
}

// Router returns the Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops taking
// new requests and waits up to ShutdownTimeout for in-flight allocations.
// Requests still running after that are cut off.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("HTTP server listening",
		logger.String("address", ln.Addr().String()),
		logger.String("service", s.cfg.ServiceName),
		logger.String("version", s.cfg.ServiceVersion),
	)

	served := make(chan error, 1)
	go func() { served <- s.http.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Draining HTTP server", logger.Duration("timeout", s.cfg.ShutdownTimeout))

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(drainCtx); err != nil {
		_ = s.http.Close()
		<-served
		return fmt.Errorf("drain in-flight requests: %w", err)
	}
	<-served

	s.log.Info("HTTP server stopped")
	return nil
}
