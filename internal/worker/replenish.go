// Package worker tops up link pools in the background: from
// create_personal_links events and from a scheduled sweep.
package worker

import (
	"context"
	"fmt"

	"github.com/THIS-Institute/thiscovery-surveys/internal/events"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// PoolReplenisher is the part of personallinks.Replenisher the worker uses.
type PoolReplenisher interface {
	BufferLow(ctx context.Context, pool personallinks.PoolID) (bool, int, error)
	Replenish(ctx context.Context, account, surveyID, contactListID string) ([]personallinks.Link, error)
}

// Result describes one handled replenish request.
type Result struct {
	Pool       personallinks.PoolID
	Unassigned int
	Minted     int
	Skipped    bool
}

// ReplenishHandler serves replenish requests. Requests are at-least-once and
// may pile up for one pool, so the buffer is checked again before minting.
type ReplenishHandler struct {
	replenisher PoolReplenisher
	validator   *personallinks.Validator
	accounts    personallinks.Accounts
	log         logger.Logger
}

// NewReplenishHandler creates a ReplenishHandler.
func NewReplenishHandler(
	replenisher PoolReplenisher,
	validator *personallinks.Validator,
	accounts personallinks.Accounts,
	log logger.Logger,
) *ReplenishHandler {
	return &ReplenishHandler{
		replenisher: replenisher,
		validator:   validator,
		accounts:    accounts,
		log:         log,
	}
}

var _ events.Handler = (*ReplenishHandler)(nil)

// HandleReplenish handles a create_personal_links event.
func (h *ReplenishHandler) HandleReplenish(ctx context.Context, event events.Envelope) error {
	_, err := h.Replenish(ctx, event.Payload)
	return err
}

// Replenish mints a batch for the pool if it is below the buffer. A missing
// contact list falls back to the account's default.
func (h *ReplenishHandler) Replenish(ctx context.Context, req personallinks.ReplenishRequest) (Result, error) {
	req.ContactListID = h.accounts.ContactList(req.Account, req.ContactListID)
	if err := h.validator.ValidateReplenish(req); err != nil {
		return Result{}, err
	}

	pool := req.PoolID()
	log := h.log.With(logger.PoolID(pool.String()))

	low, unassigned, err := h.replenisher.BufferLow(ctx, pool)
	if err != nil {
		return Result{}, fmt.Errorf("check buffer: %w", err)
	}
	if !low {
		log.Debug("Buffer already full; skipping replenish", logger.Int("unassigned", unassigned))
		return Result{Pool: pool, Unassigned: unassigned, Skipped: true}, nil
	}

	links, err := h.replenisher.Replenish(ctx, req.Account, req.SurveyID, req.ContactListID)
	if err != nil {
		return Result{}, err
	}

	log.Info("Pool replenished",
		logger.Int("unassigned_before", unassigned),
		logger.Int("minted", len(links)),
	)
	return Result{Pool: pool, Unassigned: unassigned + len(links), Minted: len(links)}, nil
}
