package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// Retry-After hints for retryable failures.
const (
	upstreamRetryAfter  = 5 * time.Second
	exhaustedRetryAfter = time.Second
)

// respondError maps a personallinks error to its HTTP status. Retryable
// failures carry a Retry-After header.
func respondError(c *gin.Context, log logger.Logger, msg string, err error) {
	var validationErr *personallinks.ValidationError
	switch {
	case errors.As(err, &validationErr):
		log.Debug(msg, logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"field":   validationErr.Field,
			"details": validationErr.Reason,
		})
	case errors.Is(err, personallinks.ErrInvalidInput):
		log.Debug(msg, logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
	case errors.Is(err, personallinks.ErrAllocationExhausted):
		log.Warn(msg, logger.Error(err))
		setRetryAfter(c, exhaustedRetryAfter)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no personal link available, try again"})
	case errors.Is(err, personallinks.ErrUpstreamUnavailable):
		log.Error(msg, logger.Error(err))
		setRetryAfter(c, upstreamRetryAfter)
		c.JSON(http.StatusBadGateway, gin.H{"error": "survey platform or link store unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, logger.Error(err))
		setRetryAfter(c, exhaustedRetryAfter)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		log.Error(msg, logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(d/time.Second)))
}
