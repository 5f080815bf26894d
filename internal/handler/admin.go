package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// PoolReplenisher mints links and reports buffer levels.
type PoolReplenisher interface {
	Replenish(ctx context.Context, account, surveyID, contactListID string) ([]personallinks.Link, error)
	BufferLow(ctx context.Context, pool personallinks.PoolID) (bool, int, error)
	Buffer() int
}

// AdminHandler serves the pool administration endpoints.
type AdminHandler struct {
	replenisher PoolReplenisher
	validator   *personallinks.Validator
	accounts    personallinks.Accounts
	logger      logger.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	replenisher PoolReplenisher,
	validator *personallinks.Validator,
	accounts personallinks.Accounts,
	log logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		replenisher: replenisher,
		validator:   validator,
		accounts:    accounts,
		logger:      log,
	}
}

type replenishBody struct {
	ContactListID string `json:"contact_list_id"`
}

// Replenish handles POST /v1/admin/pools/:account/:survey_id/replenish. It
// mints a batch whatever the buffer level and waits for it to be stored.
func (h *AdminHandler) Replenish(c *gin.Context) {
	var body replenishBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	req := personallinks.ReplenishRequest{
		Account:       c.Param("account"),
		SurveyID:      c.Param("survey_id"),
		ContactListID: h.accounts.ContactList(c.Param("account"), body.ContactListID),
	}
	ctx := c.Request.Context()
	log := h.logger.With(
		logger.CorrelationID(correlation.FromContext(ctx)),
		logger.PoolID(req.PoolID().String()),
	)

	if err := h.validator.ValidateReplenish(req); err != nil {
		respondError(c, log, "Invalid replenish request", err)
		return
	}

	links, err := h.replenisher.Replenish(ctx, req.Account, req.SurveyID, req.ContactListID)
	if err != nil {
		respondError(c, log, "Manual replenish failed", err)
		return
	}

	log.Info("Pool replenished manually", logger.Int("minted", len(links)))
	c.JSON(http.StatusOK, gin.H{"minted": len(links)})
}

// poolStats is the body of GET /v1/admin/pools/:account/:survey_id.
type poolStats struct {
	PoolID     string `json:"pool_id"`
	Unassigned int    `json:"unassigned"`
	Buffer     int    `json:"buffer"`
	BufferLow  bool   `json:"buffer_low"`
}

// Stats handles GET /v1/admin/pools/:account/:survey_id.
func (h *AdminHandler) Stats(c *gin.Context) {
	account, surveyID := c.Param("account"), c.Param("survey_id")
	log := h.logger.With(logger.CorrelationID(correlation.FromContext(c.Request.Context())))

	if err := h.validator.ValidatePool(account, surveyID); err != nil {
		respondError(c, log, "Invalid pool", err)
		return
	}

	pool := personallinks.NewPoolID(account, surveyID)
	low, unassigned, err := h.replenisher.BufferLow(c.Request.Context(), pool)
	if err != nil {
		respondError(c, log.With(logger.PoolID(pool.String())), "Pool stats failed", err)
		return
	}

	c.JSON(http.StatusOK, poolStats{
		PoolID:     pool.String(),
		Unassigned: unassigned,
		Buffer:     h.replenisher.Buffer(),
		BufferLow:  low,
	})
}
