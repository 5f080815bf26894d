// Package metrics exposes Prometheus metrics for the link pool.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/THIS-Institute/thiscovery-surveys/internal/events"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/qualtrics"
)

const (
	// Namespace is the namespace for all service metrics.
	Namespace = "thiscovery"

	// Subsystem is the subsystem for personal link metrics.
	Subsystem = "personal_links"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	AllocationsTotal        *prometheus.CounterVec
	AllocationDuration      *prometheus.HistogramVec
	AssignmentConflicts     *prometheus.CounterVec
	MintRounds              *prometheus.CounterVec
	LinksMintedTotal        *prometheus.CounterVec
	ReplenishTriggeredTotal *prometheus.CounterVec
	EventsPublished         *prometheus.CounterVec
	EventsPublishFailed     *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
}

var (
	_ personallinks.Recorder = (*Metrics)(nil)
	_ events.PublishRecorder = (*Metrics)(nil)
	_ qualtrics.Observer     = (*Metrics)(nil)
)

// New creates and registers all metrics on reg, or on the default registry
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initAllocationMetrics(factory)
	m.initReplenishMetrics(factory)
	m.initUpstreamMetrics(factory)

	return m
}

func (m *Metrics) initAllocationMetrics(factory promauto.Factory) {
	m.AllocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "allocations_total",
			Help:      "Allocation requests by outcome",
		},
		[]string{"account", "outcome"},
	)

	m.AllocationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "allocation_duration_seconds",
			Help:      "Time to serve an allocation request",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"account", "outcome"},
	)

	m.AssignmentConflicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "assignment_conflicts_total",
			Help:      "Conditional assignments lost to a concurrent request",
		},
		[]string{"account"},
	)
}

func (m *Metrics) initReplenishMetrics(factory promauto.Factory) {
	m.MintRounds = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "mint_rounds_total",
			Help:      "Synchronous replenishments performed inside an allocation",
		},
		[]string{"account"},
	)

	m.LinksMintedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "links_minted_total",
			Help:      "Links minted on the survey platform and stored",
		},
		[]string{"account"},
	)

	m.ReplenishTriggeredTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "replenish_triggered_total",
			Help:      "Asynchronous replenishments requested because the buffer was low",
		},
		[]string{"account"},
	)

	m.EventsPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "events_published_total",
			Help:      "Events appended to the stream",
		},
		[]string{"event_type"},
	)

	m.EventsPublishFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "events_publish_failed_total",
			Help:      "Events that could not be appended to the stream",
		},
		[]string{"event_type"},
	)
}

func (m *Metrics) initUpstreamMetrics(factory promauto.Factory) {
	m.UpstreamRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "upstream_request_duration_seconds",
			Help:      "Survey platform API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"account", "operation", "status"},
	)
}

// AllocationCompleted records the outcome of an allocation request.
func (m *Metrics) AllocationCompleted(account, outcome string, d time.Duration) {
	m.AllocationsTotal.WithLabelValues(account, outcome).Inc()
	m.AllocationDuration.WithLabelValues(account, outcome).Observe(d.Seconds())
}

// AssignmentConflict records a lost conditional assignment.
func (m *Metrics) AssignmentConflict(account string) {
	m.AssignmentConflicts.WithLabelValues(account).Inc()
}

// MintRound records a synchronous replenishment.
func (m *Metrics) MintRound(account string) {
	m.MintRounds.WithLabelValues(account).Inc()
}

// LinksMinted records stored links.
func (m *Metrics) LinksMinted(account string, n int) {
	m.LinksMintedTotal.WithLabelValues(account).Add(float64(n))
}

// ReplenishTriggered records a requested asynchronous replenishment.
func (m *Metrics) ReplenishTriggered(account string) {
	m.ReplenishTriggeredTotal.WithLabelValues(account).Inc()
}

// EventPublished records a published event.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// EventPublishFailed records a failed publish.
func (m *Metrics) EventPublishFailed(eventType string) {
	m.EventsPublishFailed.WithLabelValues(eventType).Inc()
}

// ObserveRequest records a survey platform API call. A zero status code
// means the request never got a response.
func (m *Metrics) ObserveRequest(account, operation string, statusCode int, d time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.UpstreamRequestDuration.WithLabelValues(account, operation, status).Observe(d.Seconds())
}
