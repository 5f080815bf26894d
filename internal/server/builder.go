package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

// Builder assembles a Server.
type Builder struct {
	config         *Config
	logger         logger.Logger
	setupRoutes    func(*gin.Engine)
	healthChecks   map[string]HealthChecker
	metricsHandler http.Handler
}

// NewBuilder creates a builder for cfg.
func NewBuilder(cfg *Config) *Builder {
	return &Builder{
		config:       cfg,
		healthChecks: make(map[string]HealthChecker),
	}
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(log logger.Logger) *Builder {
	b.logger = log
	return b
}

// WithHealthCheck adds a named health check.
func (b *Builder) WithHealthCheck(name string, checker HealthChecker) *Builder {
	b.healthChecks[name] = checker
	return b
}

// WithMetrics serves h on GET /metrics.
func (b *Builder) WithMetrics(h http.Handler) *Builder {
	b.metricsHandler = h
	return b
}

// WithRoutes sets the route setup function.
func (b *Builder) WithRoutes(setupRoutes func(*gin.Engine)) *Builder {
	b.setupRoutes = setupRoutes
	return b
}

// Build creates the server.
func (b *Builder) Build() *Server {
	if b.logger == nil {
		b.logger = logger.NewNop()
	}

	return NewServer(b.config, b.logger, func(router *gin.Engine) {
		RegisterHealthRoutes(router, HealthOptions{
			ServiceName:    b.config.ServiceName,
			ServiceVersion: b.config.ServiceVersion,
			Checks:         b.healthChecks,
		})

		if b.metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(b.metricsHandler))
		}

		if b.setupRoutes != nil {
			b.setupRoutes(router)
		}
	})
}
