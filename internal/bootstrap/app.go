// Package bootstrap wires the service together.
//
// The bootstrap process follows these phases:
//   - Phase 1: Config & Logger
//   - Phase 2: Metrics registry
//   - Phase 3: Link store (DynamoDB, PostgreSQL or memory)
//   - Phase 4: Redis and the replenish event publisher (if enabled)
//   - Phase 5: Survey platform clients
//   - Phase 6: Pool services (replenisher, allocator)
//
// Commands then run the HTTP server, the worker or a one-off operation on
// top of the returned App.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/events"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/metrics"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/qualtrics"
)

// App holds the wired services.
type App struct {
	Config      *config.Config
	Logger      logger.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Store       *StoreComponents
	Redis       *redis.Client
	Publisher   *events.Publisher
	Clients     map[string]*qualtrics.Client
	Accounts    personallinks.Accounts
	Validator   *personallinks.Validator
	Replenisher *personallinks.Replenisher
	Allocator   *personallinks.Allocator
}

// New runs every bootstrap phase. The caller must Close the App.
func New(ctx context.Context, configPath string, debug bool) (*App, error) {
	// Phase 1: Config & Logger
	cfg, err := LoadConfig(configPath, debug)
	if err != nil {
		return nil, err
	}
	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: log}

	// Phase 2: Metrics registry
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.Registry)

	// Phase 3: Link store
	app.Store, err = SetupStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("setup link store: %w", err)
	}

	// Phase 4: Redis and publisher
	app.Redis, err = SetupRedis(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("setup redis: %w", err)
	}
	app.Publisher = SetupEventPublisher(app.Redis, cfg, log, app.Metrics)

	// Phase 5: Survey platform clients
	app.Clients = qualtrics.NewClients(cfg.Qualtrics, log, qualtrics.WithObserver(app.Metrics))
	app.Accounts = accountsFrom(cfg.Qualtrics)

	// Phase 6: Pool services
	app.Validator = personallinks.NewValidator(app.Accounts, cfg.Pool.RequireUUIDParticipant)
	app.Replenisher = personallinks.NewReplenisher(
		app.Store.Store,
		qualtrics.Sources(app.Clients),
		personallinks.ReplenisherConfig{
			Buffer:       cfg.Pool.Buffer,
			Attempts:     cfg.Pool.ReplenishAttempts,
			InitialDelay: cfg.Pool.ReplenishInitialDelay,
		},
		log,
		app.Metrics,
	)

	var trigger personallinks.Trigger = personallinks.NopTrigger()
	if app.Publisher != nil {
		trigger = app.Publisher
	}
	app.Allocator = personallinks.NewAllocator(
		app.Store.Store,
		app.Replenisher,
		trigger,
		app.Validator,
		app.Accounts,
		personallinks.AllocatorConfig{
			Buffer:        cfg.Pool.Buffer,
			MaxMintRounds: cfg.Pool.MaxMintRounds,
			Timeout:       cfg.Pool.AllocationTimeout,
		},
		log,
		app.Metrics,
	)

	return app, nil
}

// Close releases the store and Redis connections and flushes the logger.
func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil && a.Store.Close != nil {
		errs = append(errs, a.Store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Error("Failed to close connections", logger.Error(err))
	}
	_ = a.Logger.Sync()
}

func accountsFrom(cfg config.QualtricsConfig) personallinks.Accounts {
	accounts := make(personallinks.Accounts, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts[a.Name] = a.DefaultContactListID
	}
	return accounts
}
