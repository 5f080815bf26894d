package personallinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

// Minter creates links synchronously. *Replenisher implements it.
type Minter interface {
	Replenish(ctx context.Context, account, surveyID, contactListID string) ([]Link, error)
}

// AllocatorConfig tunes the Allocator.
type AllocatorConfig struct {
	// Buffer is the unassigned count below which a replenish event is published.
	Buffer int
	// MaxMintRounds caps the synchronous mints a single request may perform.
	MaxMintRounds int
	// Timeout caps the wall-clock time after which no further mint round
	// starts. The first round is never skipped.
	Timeout time.Duration
}

// Allocator hands out personal links.
type Allocator struct {
	store     Store
	minter    Minter
	trigger   Trigger
	validator *Validator
	accounts  Accounts
	cfg       AllocatorConfig
	log       logger.Logger
	rec       Recorder
	now       func() time.Time
}

// NewAllocator creates an Allocator.
func NewAllocator(
	store Store,
	minter Minter,
	trigger Trigger,
	validator *Validator,
	accounts Accounts,
	cfg AllocatorConfig,
	log logger.Logger,
	rec Recorder,
) *Allocator {
	if trigger == nil {
		trigger = NopTrigger()
	}
	if rec == nil {
		rec = NopRecorder()
	}
	if cfg.MaxMintRounds <= 0 {
		cfg.MaxMintRounds = 1
	}
	return &Allocator{
		store:     store,
		minter:    minter,
		trigger:   trigger,
		validator: validator,
		accounts:  accounts,
		cfg:       cfg,
		log:       log,
		rec:       rec,
		now:       time.Now,
	}
}

// Allocate returns the personal link of the participant, assigning one from
// the pool on first request. A participant who already holds a link gets the
// same URL back.
func (a *Allocator) Allocate(ctx context.Context, req Request) (string, error) {
	start := a.now()
	url, outcome, err := a.allocate(ctx, req, start)
	a.rec.AllocationCompleted(req.Account, outcome, a.now().Sub(start))
	return url, err
}

func (a *Allocator) allocate(ctx context.Context, req Request, start time.Time) (url, outcome string, err error) {
	if err := a.validator.ValidateRequest(req); err != nil {
		return "", OutcomeInvalid, err
	}

	pool := req.PoolID()
	ctx, span := startSpan(ctx, "personallinks.allocate", pool)
	defer func() {
		span.SetAttributes(attribute.String("allocation.outcome", outcome))
		endSpan(span, err)
	}()

	log := a.log.With(logger.PoolID(pool.String()), logger.ParticipantID(req.ParticipantID))

	assigned, err := a.store.QueryAssignedForParticipant(ctx, pool, req.ParticipantID)
	if err != nil {
		return "", a.failureOutcome(ctx), storeError(ctx, "query assigned links", err)
	}
	if len(assigned) > 0 {
		if len(assigned) > 1 {
			log.Warn("Participant holds more than one link", logger.Int("count", len(assigned)))
		}
		return SortBySoonestExpiry(assigned)[0].URL, OutcomeExisting, nil
	}

	candidates, err := a.store.QueryUnassigned(ctx, pool)
	if err != nil {
		return "", a.failureOutcome(ctx), storeError(ctx, "query unassigned links", err)
	}

	contactList := a.accounts.ContactList(req.Account, "")
	if len(candidates) < a.cfg.Buffer {
		log.Debug("Personal links buffer is low; requesting replenishment", logger.Int("unassigned", len(candidates)))
		a.trigger.TriggerReplenish(ctx, ReplenishRequest{
			Account:       req.Account,
			SurveyID:      req.SurveyID,
			ContactListID: contactList,
		})
		a.rec.ReplenishTriggered(req.Account)
	}

	deadline := start.Add(a.cfg.Timeout)
	for round := 0; ; {
		if len(candidates) == 0 {
			// The first mint always runs; the caps only bound repeated exhaustion.
			if round > 0 && (round >= a.cfg.MaxMintRounds || (a.cfg.Timeout > 0 && a.now().After(deadline))) {
				log.Error("Gave up allocating personal link", logger.Int("mint_rounds", round))
				return "", OutcomeExhausted, fmt.Errorf("%w: %s after %d mint rounds", ErrAllocationExhausted, pool, round)
			}
			round++
			a.rec.MintRound(req.Account)
			log.Info("No unassigned links available; creating more", logger.Int("mint_round", round))

			candidates, err = a.minter.Replenish(ctx, req.Account, req.SurveyID, contactList)
			if err != nil {
				return "", a.failureOutcome(ctx), err
			}
			continue
		}

		url, err := a.assignFirstAvailable(ctx, log, pool, req.ParticipantID, candidates)
		if err != nil {
			return "", a.failureOutcome(ctx), storeError(ctx, "assign link", err)
		}
		if url != "" {
			log.Info("Personal link assigned", logger.String("url", url))
			return url, OutcomeAssigned, nil
		}

		log.Info("Ran out of unassigned links; every candidate was taken", logger.Int("candidates", len(candidates)))
		candidates = nil
	}
}

// assignFirstAvailable tries the candidates soonest-expiring first and
// returns the URL of the first one won, or "" if every one was taken.
func (a *Allocator) assignFirstAvailable(
	ctx context.Context,
	log logger.Logger,
	pool PoolID,
	participantID string,
	candidates []Link,
) (string, error) {
	for _, link := range SortBySoonestExpiry(candidates) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ok, err := a.store.TryAssign(ctx, pool, link.URL, participantID)
		if err != nil {
			return "", err
		}
		if ok {
			return link.URL, nil
		}

		a.rec.AssignmentConflict(pool.Account())
		log.Debug("Link assignment failed; link is already assigned to another participant", logger.String("url", link.URL))
	}
	return "", nil
}

func (a *Allocator) failureOutcome(ctx context.Context) string {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	return OutcomeUpstream
}

// storeError wraps a store failure as ErrUpstreamUnavailable unless the
// request itself was cancelled.
func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}
