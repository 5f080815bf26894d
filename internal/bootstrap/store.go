package bootstrap

import (
	"context"
	"fmt"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/database"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/dynamo"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/memory"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/postgres"
)

// StoreComponents is the link store selected by store.backend.
type StoreComponents struct {
	Store personallinks.Store
	// Ping is nil for the memory backend.
	Ping  func(ctx context.Context) error
	Close func() error
}

// SetupStore opens the configured link store.
func SetupStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*StoreComponents, error) {
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		s := dynamo.New(client, dynamo.TablesFrom(cfg.DynamoDB))
		log.Info("Using DynamoDB link store",
			logger.String("table", cfg.DynamoDB.TableName),
			logger.String("region", cfg.DynamoDB.Region),
		)
		return &StoreComponents{Store: s, Ping: s.Ping, Close: func() error { return nil }}, nil

	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s := postgres.New(db)
		log.Info("Using PostgreSQL link store",
			logger.String("host", cfg.Database.Host),
			logger.String("database", cfg.Database.Database),
		)
		return &StoreComponents{Store: s, Ping: s.Ping, Close: db.Close}, nil

	case config.BackendMemory:
		log.Warn("Using in-memory link store; links are lost on restart")
		return &StoreComponents{Store: memory.New(), Close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
