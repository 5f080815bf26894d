package personallinks

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks . Store,LinkSource,Trigger

import (
	"context"
	"fmt"
	"time"
)

// Store is the durable link table. Implementations must make TryAssign a
// single conditional write; it is the only concurrency control in the pool.
type Store interface {
	// PutBatch inserts new links for a pool.
	PutBatch(ctx context.Context, pool PoolID, links []Link) error
	// QueryUnassigned returns every link of the pool with status new.
	QueryUnassigned(ctx context.Context, pool PoolID) ([]Link, error)
	// QueryAssignedForParticipant returns the links of the pool held by a
	// participant. Expected cardinality is 0 or 1.
	QueryAssignedForParticipant(ctx context.Context, pool PoolID, participantID string) ([]Link, error)
	// TryAssign gives the link to the participant if nobody holds it yet.
	// It returns false, nil when another participant won the race.
	TryAssign(ctx context.Context, pool PoolID, url, participantID string) (bool, error)
}

// LinkSource mints links on the survey platform.
type LinkSource interface {
	// CreateIndividualLinks creates a distribution of single-use links for
	// every contact in the list and returns its id.
	CreateIndividualLinks(ctx context.Context, surveyID, contactListID string) (string, error)
	// ListDistributionLinks returns the links of a distribution.
	ListDistributionLinks(ctx context.Context, distributionID, surveyID string) ([]DistributionLink, error)
}

// LinkSources holds one LinkSource per account.
type LinkSources map[string]LinkSource

// For returns the source of an account.
func (s LinkSources) For(account string) (LinkSource, error) {
	src, ok := s[account]
	if !ok {
		return nil, &ValidationError{Field: "account", Reason: fmt.Sprintf("no link source for %q", account)}
	}
	return src, nil
}

// Trigger requests an asynchronous replenishment. It must not block on the
// event bus and never reports failure to the caller.
type Trigger interface {
	TriggerReplenish(ctx context.Context, req ReplenishRequest)
}

// Allocation outcomes reported to the Recorder.
const (
	OutcomeExisting  = "existing"
	OutcomeAssigned  = "assigned"
	OutcomeInvalid   = "invalid"
	OutcomeUpstream  = "upstream_error"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

// Recorder receives pool measurements.
type Recorder interface {
	AllocationCompleted(account, outcome string, d time.Duration)
	AssignmentConflict(account string)
	MintRound(account string)
	LinksMinted(account string, n int)
	ReplenishTriggered(account string)
}

type nopRecorder struct{}

func (nopRecorder) AllocationCompleted(string, string, time.Duration) {}
func (nopRecorder) AssignmentConflict(string)                         {}
func (nopRecorder) MintRound(string)                                  {}
func (nopRecorder) LinksMinted(string, int)                           {}
func (nopRecorder) ReplenishTriggered(string)                         {}

// NopRecorder discards every measurement.
func NopRecorder() Recorder { return nopRecorder{} }

type nopTrigger struct{}

func (nopTrigger) TriggerReplenish(context.Context, ReplenishRequest) {}

// NopTrigger drops replenish requests. Used when the event bus is disabled.
func NopTrigger() Trigger { return nopTrigger{} }
