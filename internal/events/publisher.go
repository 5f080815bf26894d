package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/THIS-Institute/thiscovery-surveys/internal/correlation"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// defaultPublishTimeout bounds an async publish when none is configured.
const defaultPublishTimeout = 5 * time.Second

// PublishRecorder counts publish outcomes.
type PublishRecorder interface {
	EventPublished(eventType string)
	EventPublishFailed(eventType string)
}

type nopPublishRecorder struct{}

func (nopPublishRecorder) EventPublished(string)     {}
func (nopPublishRecorder) EventPublishFailed(string) {}

// Publisher appends events to the stream.
type Publisher struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
	log     logger.Logger
	rec     PublishRecorder
}

// NewPublisher creates a publisher. It returns nil if client is nil; a nil
// Publisher drops every event.
func NewPublisher(client *redis.Client, stream string, timeout time.Duration, log logger.Logger, rec PublishRecorder) *Publisher {
	if client == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if rec == nil {
		rec = nopPublishRecorder{}
	}
	return &Publisher{
		client:  client,
		stream:  stream,
		timeout: timeout,
		log:     log,
		rec:     rec,
	}
}

var _ personallinks.Trigger = (*Publisher)(nil)

// Publish sends an event to the stream and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, event Envelope) (string, error) {
	if p == nil || p.client == nil {
		return "", nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{messageField: string(payload)},
	}).Result()
	if err != nil {
		p.rec.EventPublishFailed(string(event.EventType))
		return "", fmt.Errorf("publish to stream: %w", err)
	}

	p.rec.EventPublished(string(event.EventType))
	p.log.Debug("Published event",
		logger.String("event_type", string(event.EventType)),
		logger.String("stream_id", id),
		logger.PoolID(event.Payload.PoolID().String()),
		logger.CorrelationID(event.CorrelationID),
	)
	return id, nil
}

// TriggerReplenish publishes a create_personal_links event in the
// background. The caller's context only supplies the correlation id, so a
// finished HTTP request does not cancel the publish.
func (p *Publisher) TriggerReplenish(ctx context.Context, req personallinks.ReplenishRequest) {
	if p == nil {
		return
	}

	event := NewCreatePersonalLinks(req, correlation.FromContext(ctx))

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if _, err := p.Publish(pubCtx, event); err != nil {
			p.log.Error("Async publish failed",
				logger.String("event_type", string(event.EventType)),
				logger.PoolID(req.PoolID().String()),
				logger.CorrelationID(event.CorrelationID),
				logger.Error(err),
			)
		}
	}()
}
