// Package handler exposes the personal link pool over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// Allocator hands out personal links.
type Allocator interface {
	Allocate(ctx context.Context, req personallinks.Request) (string, error)
}

// PersonalLinkHandler serves the public allocation endpoint.
type PersonalLinkHandler struct {
	allocator Allocator
	logger    logger.Logger
}

// NewPersonalLinkHandler creates a PersonalLinkHandler.
func NewPersonalLinkHandler(allocator Allocator, log logger.Logger) *PersonalLinkHandler {
	return &PersonalLinkHandler{allocator: allocator, logger: log}
}

// personalLinkResponse is the body of a successful allocation.
type personalLinkResponse struct {
	PersonalLink string `json:"personal_link"`
}

// Get handles GET /v1/personal-link?account=&survey_id=&participant_id=.
// user_id is accepted in place of participant_id.
func (h *PersonalLinkHandler) Get(c *gin.Context) {
	req := personallinks.Request{
		Account:       c.Query("account"),
		SurveyID:      c.Query("survey_id"),
		ParticipantID: c.Query("participant_id"),
	}
	if req.ParticipantID == "" {
		req.ParticipantID = c.Query("user_id")
	}

	ctx := c.Request.Context()
	log := h.logger.With(
		logger.CorrelationID(correlation.FromContext(ctx)),
		logger.Account(req.Account),
		logger.SurveyID(req.SurveyID),
		logger.ParticipantID(req.ParticipantID),
	)

	url, err := h.allocator.Allocate(ctx, req)
	if err != nil {
		respondError(c, log, "Personal link allocation failed", err)
		return
	}

	c.JSON(http.StatusOK, personalLinkResponse{PersonalLink: url})
}
