package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// readErrorBackoff is the pause after a failed XREADGROUP.
const readErrorBackoff = time.Second

// Handler processes create_personal_links events. Returning an error leaves
// the message pending so it is claimed and retried later, unless the error
// wraps personallinks.ErrInvalidInput.
type Handler interface {
	HandleReplenish(ctx context.Context, event Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Envelope) error

// HandleReplenish calls f.
func (f HandlerFunc) HandleReplenish(ctx context.Context, event Envelope) error {
	return f(ctx, event)
}

// Consumer reads events from the stream as a member of a consumer group.
type Consumer struct {
	client     *redis.Client
	cfg        config.EventsConfig
	consumerID string
	handler    Handler
	log        logger.Logger

	shutdownCh chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewConsumer creates a consumer. It returns nil if client is nil.
func NewConsumer(client *redis.Client, cfg config.EventsConfig, consumerID string, handler Handler, log logger.Logger) *Consumer {
	if client == nil {
		return nil
	}
	if consumerID == "" {
		consumerID = generateConsumerID()
	}
	return &Consumer{
		client:     client,
		cfg:        cfg,
		consumerID: consumerID,
		handler:    handler,
		log:        log.With(logger.String("consumer_id", consumerID)),
		shutdownCh: make(chan struct{}),
	}
}

func generateConsumerID() string {
	const uuidPrefixLength = 8
	return fmt.Sprintf("replenisher-%s", uuid.New().String()[:uuidPrefixLength])
}

// ID returns the consumer name within the group.
func (c *Consumer) ID() string { return c.consumerID }

// Start creates the consumer group if needed and starts the read and claim
// loops. It returns once the loops are running.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	c.log.Info("Starting event consumer",
		logger.String("stream", c.cfg.Stream),
		logger.String("group", c.cfg.ConsumerGroup),
	)

	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.claimAbandonedLoop(ctx)

	return nil
}

// Stop ends the loops and waits for the message in flight to finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.shutdownCh) })
	c.wg.Wait()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdownCh:
			return
		default:
			c.readAndProcess(ctx)
		}
	}
}

func (c *Consumer) readAndProcess(ctx context.Context) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.consumerID,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    int64(c.cfg.BatchSize),
		Block:    c.cfg.BlockTimeout,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		c.log.Error("Failed to read from stream", logger.Error(err))
		c.pause(ctx, readErrorBackoff)
		return
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values[messageField].(string)
	if !ok {
		c.log.Error("Invalid message format", logger.String("stream_id", msg.ID))
		c.ackMessage(ctx, msg.ID)
		return
	}

	var event Envelope
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		c.log.Error("Failed to unmarshal event",
			logger.String("stream_id", msg.ID),
			logger.Error(err),
		)
		c.ackMessage(ctx, msg.ID)
		return
	}

	if event.EventType != CreatePersonalLinks {
		c.log.Warn("Unknown event type",
			logger.String("event_type", string(event.EventType)),
			logger.String("stream_id", msg.ID),
		)
		c.ackMessage(ctx, msg.ID)
		return
	}

	handlerCtx := ctx
	if event.CorrelationID != "" {
		handlerCtx = correlation.WithID(ctx, event.CorrelationID)
	}

	fields := []logger.Field{
		logger.String("stream_id", msg.ID),
		logger.PoolID(event.Payload.PoolID().String()),
		logger.CorrelationID(event.CorrelationID),
	}

	if err := c.handler.HandleReplenish(handlerCtx, event); err != nil {
		if errors.Is(err, personallinks.ErrInvalidInput) {
			c.log.Error("Dropping invalid replenish request", append(fields, logger.Error(err))...)
			c.ackMessage(ctx, msg.ID)
			return
		}
		c.log.Error("Failed to handle event", append(fields, logger.Error(err))...)
		return
	}

	c.ackMessage(ctx, msg.ID)
	c.log.Info("Processed event", fields...)
}

func (c *Consumer) ackMessage(ctx context.Context, streamID string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.ConsumerGroup, streamID).Err(); err != nil {
		c.log.Error("Failed to ACK message",
			logger.String("stream_id", streamID),
			logger.Error(err),
		)
	}
}

func (c *Consumer) claimAbandonedLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdownCh:
			return
		case <-ticker.C:
			c.claimAbandonedMessages(ctx)
		}
	}
}

// claimAbandonedMessages takes over messages another consumer (or this one)
// read but never acknowledged.
func (c *Consumer) claimAbandonedMessages(ctx context.Context) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.ConsumerGroup,
		Consumer: c.consumerID,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    int64(c.cfg.BatchSize),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("Failed to auto-claim messages", logger.Error(err))
		}
		return
	}

	for _, msg := range messages {
		c.log.Info("Claimed abandoned message", logger.String("stream_id", msg.ID))
		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) ensureConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.ConsumerGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return err
	}
	return nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (c *Consumer) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-c.shutdownCh:
	case <-t.C:
	}
}
