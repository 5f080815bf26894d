// Package events carries create_personal_links requests over a Redis Stream
// from the allocation API to the replenish workers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// EventType names an event on the stream.
type EventType string

// CreatePersonalLinks asks a worker to top up a pool.
const CreatePersonalLinks EventType = "create_personal_links"

// messageField is the stream entry field holding the JSON envelope.
const messageField = "event"

// Envelope wraps every event on the stream.
type Envelope struct {
	EventID       uuid.UUID                      `json:"event_id"`
	EventType     EventType                      `json:"event_type"`
	Timestamp     time.Time                      `json:"timestamp"`
	CorrelationID string                         `json:"correlation_id,omitempty"`
	Payload       personallinks.ReplenishRequest `json:"payload"`
}

// NewCreatePersonalLinks builds the event for a replenish request.
func NewCreatePersonalLinks(req personallinks.ReplenishRequest, correlationID string) Envelope {
	return Envelope{
		EventID:       uuid.New(),
		EventType:     CreatePersonalLinks,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       req,
	}
}
