package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/THIS-Institute/thiscovery-surveys/internal/handler"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/profiling"
	infraredis "github.com/THIS-Institute/thiscovery-surveys/internal/redis"
	"github.com/THIS-Institute/thiscovery-surveys/internal/server"
)

// SetupHTTPServer builds the API server: allocation, admin, health and metrics.
func SetupHTTPServer(app *App) *server.Server {
	cfg := app.Config

	routes := handler.Routes{
		PersonalLink: handler.NewPersonalLinkHandler(app.Allocator, app.Logger),
		Admin:        handler.NewAdminHandler(app.Replenisher, app.Validator, app.Accounts, app.Logger),
		JWTSecret:    cfg.Auth.JWTSecret,
	}
	if cfg.Auth.JWTSecret == "" {
		app.Logger.Warn("auth.jwt_secret is empty; admin API disabled")
	}

	b := server.NewBuilder(server.ConfigFrom(cfg.Service)).
		WithLogger(app.Logger).
		WithMetrics(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{Registry: app.Registry})).
		WithRoutes(routes.Register)

	if app.Store.Ping != nil {
		b.WithHealthCheck("store", server.PingChecker("store", true, app.Store.Ping))
	}
	if app.Redis != nil {
		b.WithHealthCheck("redis", server.PingChecker("redis", false, infraredis.NewChecker(app.Redis).Ping))
	}
	return b.Build()
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, app *App) error {
	pprofServer := profiling.StartPprofServer(app.Config.Profiling, app.Logger)
	pyroscope, err := profiling.StartPyroscope(app.Config.Profiling, app.Config.Service.Name, app.Config.Service.Version, app.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := pyroscope.Stop(); stopErr != nil {
			app.Logger.Warn("Failed to stop Pyroscope profiler", logger.Error(stopErr))
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pprofServer.Stop(stopCtx)
	}()

	srv := SetupHTTPServer(app)
	if runErr := srv.Run(ctx); runErr != nil {
		return fmt.Errorf("server error: %w", runErr)
	}
	app.Logger.Info("Server exited")
	return nil
}
