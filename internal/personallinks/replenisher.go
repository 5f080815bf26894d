package personallinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/retry"
)

// errBatchWrite marks a failed PutBatch so the whole mint is retried.
var errBatchWrite = errors.New("batch write failed")

// ReplenisherConfig tunes the Replenisher.
type ReplenisherConfig struct {
	// Buffer is the unassigned count below which a pool is low.
	Buffer int
	// Attempts is the number of wholesale mint+write attempts.
	Attempts int
	// InitialDelay is the first backoff between attempts.
	InitialDelay time.Duration
}

// Replenisher mints links on the survey platform and stores them as new.
type Replenisher struct {
	store   Store
	sources LinkSources
	buffer  int
	retry   retry.Config
	log     logger.Logger
	rec     Recorder
	now     func() time.Time
}

// NewReplenisher creates a Replenisher.
func NewReplenisher(store Store, sources LinkSources, cfg ReplenisherConfig, log logger.Logger, rec Recorder) *Replenisher {
	if rec == nil {
		rec = NopRecorder()
	}
	return &Replenisher{
		store:   store,
		sources: sources,
		buffer:  cfg.Buffer,
		retry: retry.Config{
			MaxAttempts:  cfg.Attempts,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     10 * time.Second,
			IsRetryable:  isRetryableMintError,
		},
		log: log,
		rec: rec,
		now: time.Now,
	}
}

// Replenish mints a batch of links for the pool of (account, surveyID) from
// the given contact list, stores them as new and returns them. Nothing is
// stored unless the platform calls succeed; a failed store write repeats the
// whole mint, which at worst leaves extra unused links behind.
func (r *Replenisher) Replenish(ctx context.Context, account, surveyID, contactListID string) (links []Link, err error) {
	pool := NewPoolID(account, surveyID)
	ctx, span := startSpan(ctx, "personallinks.replenish", pool, attribute.String("contact_list.id", contactListID))
	defer func() { endSpan(span, err) }()

	source, err := r.sources.For(account)
	if err != nil {
		return nil, err
	}

	log := r.log.With(logger.PoolID(pool.String()), logger.String("contact_list_id", contactListID))
	cfg := r.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("Personal link mint failed; retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}

	err = retry.Retry(ctx, cfg, func(ctx context.Context) error {
		minted, mintErr := r.mint(ctx, source, pool, surveyID, contactListID)
		if mintErr != nil {
			return mintErr
		}
		links = minted
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrContextCancelled) {
			return nil, fmt.Errorf("replenish %s: %w", pool, err)
		}
		return nil, fmt.Errorf("%w: replenish %s: %w", ErrUpstreamUnavailable, pool, err)
	}

	r.rec.LinksMinted(account, len(links))
	log.Info("Personal links created", logger.Int("count", len(links)))
	return links, nil
}

func (r *Replenisher) mint(ctx context.Context, source LinkSource, pool PoolID, surveyID, contactListID string) ([]Link, error) {
	distributionID, err := source.CreateIndividualLinks(ctx, surveyID, contactListID)
	if err != nil {
		return nil, fmt.Errorf("create distribution: %w", err)
	}

	rows, err := source.ListDistributionLinks(ctx, distributionID, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list links of distribution %s: %w", distributionID, err)
	}

	now := r.now().UTC()
	links := make([]Link, 0, len(rows))
	for _, row := range rows {
		if row.URL == "" {
			continue
		}
		links = append(links, Link{
			PoolID:    pool,
			URL:       row.URL,
			Status:    StatusNew,
			Expires:   row.Expires,
			Details:   row.Details,
			CreatedAt: now,
		})
	}

	if len(links) == 0 {
		return links, nil
	}
	if err := r.store.PutBatch(ctx, pool, links); err != nil {
		return nil, fmt.Errorf("%w: %w", errBatchWrite, err)
	}
	return links, nil
}

// BufferLow reports whether the pool holds fewer unassigned links than the
// buffer, along with the current count.
func (r *Replenisher) BufferLow(ctx context.Context, pool PoolID) (bool, int, error) {
	unassigned, err := r.store.QueryUnassigned(ctx, pool)
	if err != nil {
		return false, 0, fmt.Errorf("%w: query unassigned links: %w", ErrUpstreamUnavailable, err)
	}
	return len(unassigned) < r.buffer, len(unassigned), nil
}

// Buffer returns the low-water mark.
func (r *Replenisher) Buffer() int { return r.buffer }

// retryable is implemented by source errors that know whether a repeat can succeed.
type retryable interface {
	Retryable() bool
}

func isRetryableMintError(err error) bool {
	if errors.Is(err, errBatchWrite) {
		return true
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return retry.DefaultIsRetryable(err)
}
