package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// sweepTimeout bounds one pass over every configured pool.
const sweepTimeout = 10 * time.Minute

// Sweeper periodically tops up the configured pools, so a pool recovers even
// when replenish events were lost.
type Sweeper struct {
	handler *ReplenishHandler
	pools   []config.SweepPool
	cron    *cron.Cron
	parser  cron.Parser
	log     logger.Logger
}

// NewSweeper creates a Sweeper. Overlapping runs are skipped.
func NewSweeper(handler *ReplenishHandler, pools []config.SweepPool, log logger.Logger) *Sweeper {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cl := cronLogger{log: log}

	return &Sweeper{
		handler: handler,
		pools:   pools,
		parser:  parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *Sweeper) Start(schedule string) error {
	sched, err := s.parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}

	s.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.Sweep(ctx)
	}))
	s.cron.Start()

	s.log.Info("Sweep scheduled",
		logger.String("schedule", schedule),
		logger.Int("pools", len(s.pools)),
		logger.Time("next_run", sched.Next(time.Now())),
	)
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep checks every pool once and returns the per-pool results. A failing
// pool does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) []Result {
	ctx, id := correlation.Ensure(ctx)
	log := s.log.With(logger.CorrelationID(id))

	results := make([]Result, 0, len(s.pools))
	for _, p := range s.pools {
		if ctx.Err() != nil {
			break
		}

		res, err := s.handler.Replenish(ctx, personallinks.ReplenishRequest{
			Account:       p.Account,
			SurveyID:      p.SurveyID,
			ContactListID: p.ContactListID,
		})
		if err != nil {
			log.Error("Sweep failed for pool",
				logger.Account(p.Account),
				logger.SurveyID(p.SurveyID),
				logger.Error(err),
			)
			continue
		}
		results = append(results, res)
	}

	log.Info("Sweep finished", logger.Int("pools", len(s.pools)), logger.Int("succeeded", len(results)))
	return results
}

// cronLogger routes cron's own messages to the service logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, logger.Error(err), logger.Any("details", keysAndValues))
}
