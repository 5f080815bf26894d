// Package qualtrics is a client for the distributions endpoints of the
// Qualtrics v3 REST API, used to mint personal survey links.
package qualtrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/THIS-Institute/thiscovery-surveys/internal/circuitbreaker"
	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

const (
	tokenHeader = "X-API-TOKEN"

	// maxErrorBody bounds how much of a failed response is kept in HTTPError.
	maxErrorBody = 4 << 10
)

// Observer receives the outcome of every API request.
type Observer interface {
	ObserveRequest(account, operation string, statusCode int, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, int, time.Duration) {}

// Client talks to one Qualtrics account. Requests are rate limited and pass
// through a circuit breaker that opens on 5xx, 429 and transport failures.
type Client struct {
	account    string
	baseURL    string
	token      string
	linkExpiry time.Duration

	http     *http.Client
	limiter  *rate.Limiter
	breaker  *circuitbreaker.Breaker
	observer Observer
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver sets the request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock overrides time.Now, used to compute link expiration dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for one account.
func New(account config.QualtricsAccount, cfg config.QualtricsConfig, log logger.Logger, opts ...Option) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	c := &Client{
		account:    account.Name,
		baseURL:    account.BaseURL,
		token:      account.APIToken,
		linkExpiry: cfg.LinkExpiry,
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		observer:   nopObserver{},
		log:        log.With(logger.Account(account.Name)),
		now:        time.Now,
	}

	c.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerThreshold,
		Timeout:          cfg.BreakerOpenTimeout,
		IsFailure:        countsAgainstBreaker,
		OnStateChange: func(from, to circuitbreaker.State) {
			c.log.Warn("Qualtrics circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account returns the account name the client is bound to.
func (c *Client) Account() string { return c.account }

// envelope is the response wrapper of every v3 endpoint.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Meta   struct {
		HTTPStatus string `json:"httpStatus"`
		RequestID  string `json:"requestId"`
		Error      *struct {
			ErrorMessage string `json:"errorMessage"`
			ErrorCode    string `json:"errorCode"`
		} `json:"error,omitempty"`
	} `json:"meta"`
}

// do sends one request and decodes the envelope's result into out. url may
// be absolute (a nextPage link) or a path below the base URL.
func (c *Client) do(ctx context.Context, operation, method, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("qualtrics %s: rate limit wait: %w", operation, err)
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, operation, method, url, body, out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("qualtrics %s: %w", operation, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, operation, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qualtrics %s: marshal request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(url), reader)
	if err != nil {
		return fmt.Errorf("qualtrics %s: create request: %w", operation, err)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observer.ObserveRequest(c.account, operation, 0, c.now().Sub(start))
		return fmt.Errorf("qualtrics %s: %w", operation, err)
	}
	defer resp.Body.Close()
	c.observer.ObserveRequest(c.account, operation, resp.StatusCode, c.now().Sub(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newHTTPError(operation, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("qualtrics %s: decode response: %w", operation, err)
	}
	if err = json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("qualtrics %s: decode result: %w", operation, err)
	}
	return nil
}

func (c *Client) resolve(url string) string {
	if len(url) > 0 && url[0] == '/' {
		return c.baseURL + url
	}
	return url
}

func newHTTPError(operation string, resp *http.Response) *HTTPError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	herr := &HTTPError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}

	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Meta.Error != nil {
		herr.Message = env.Meta.Error.ErrorMessage
		herr.Code = env.Meta.Error.ErrorCode
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			herr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return herr
}
