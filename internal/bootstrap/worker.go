package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/events"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/worker"
)

const workerStopTimeout = 30 * time.Second

// ErrRedisRequired is returned when the worker runs without Redis.
var ErrRedisRequired = errors.New("worker requires redis.enabled")

// NewReplenishHandler builds the handler shared by the consumer, the sweeper
// and the mint command.
func NewReplenishHandler(app *App) *worker.ReplenishHandler {
	return worker.NewReplenishHandler(app.Replenisher, app.Validator, app.Accounts, app.Logger)
}

// RunWorker consumes replenish events and, if enabled, runs the scheduled
// sweep until ctx is cancelled.
func RunWorker(ctx context.Context, app *App) error {
	if app.Redis == nil {
		return ErrRedisRequired
	}

	handler := NewReplenishHandler(app)
	consumer := events.NewConsumer(app.Redis, app.Config.Events, "", handler, app.Logger)
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	var sweeper *worker.Sweeper
	if app.Config.Sweep.Enabled {
		sweeper = worker.NewSweeper(handler, app.Config.Sweep.Pools, app.Logger)
		if err := sweeper.Start(app.Config.Sweep.Schedule); err != nil {
			consumer.Stop()
			return err
		}
	}

	<-ctx.Done()
	app.Logger.Info("Shutdown signal received; stopping worker", logger.String("consumer_id", consumer.ID()))

	consumer.Stop()
	if sweeper != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), workerStopTimeout)
		defer cancel()
		sweeper.Stop(stopCtx)
	}

	app.Logger.Info("Worker stopped")
	return nil
}
