package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

const (
	// requestIDKey is the gin context key holding the correlation id.
	requestIDKey = "request_id"
	// maxRequestIDLength caps ids accepted from callers.
	maxRequestIDLength = 128
)

// RecoveryMiddleware catches panics, logs them and returns a 500.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					logger.Any("error", err),
					logger.String("path", c.Request.URL.Path),
					logger.String("method", c.Request.Method),
					logger.String("client_ip", c.ClientIP()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal server error",
					"code":    "INTERNAL_ERROR",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// RequestIDLoggerMiddleware takes the correlation id from X-Request-ID, or
// creates one when the header is absent or oversized. The id is echoed back
// and stored in the request context along with a logger carrying it.
func RequestIDLoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(correlation.Header)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = correlation.NewID()
		}

		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(correlation.Header, requestID)

		ctx := correlation.WithID(c.Request.Context(), requestID)
		ctx = logger.WithContext(ctx, log.With(logger.CorrelationID(requestID)))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggerMiddleware logs each request once, after it completes.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		method := c.Request.Method

		c.Next()

		fields := []logger.Field{
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(requestIDKey); id != "" {
			fields = append(fields, logger.CorrelationID(id))
		}
		if query != "" {
			fields = append(fields, logger.String("query", query))
		}
		if !strings.HasPrefix(path, "/health") {
			fields = append(fields, logger.String("user_agent", c.Request.UserAgent()))
		}

		if len(c.Errors) > 0 {
			errorMessages := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				errorMessages[i] = err.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", errorMessages))
			log.Error("HTTP request with errors", fields...)
			return
		}

		log.Info("HTTP request", fields...)
	}
}
