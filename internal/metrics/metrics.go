// ABOUTME: Prometheus recorder for flow lifecycle, event outcomes, and gateway failures
// ABOUTME: Implements flow.Observer so the orchestrator reports without knowing about Prometheus

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/flowkeeper/internal/flow"
)

const namespace = "flowkeeper"

// Recorder holds the orchestrator's collectors.
type Recorder struct {
	// FlowsActive tracks flows currently held in the store.
	FlowsActive prometheus.Gauge
	// FlowsCreated tracks flows created, by kind.
	FlowsCreated *prometheus.CounterVec
	// FlowsFinished tracks flows evicted from the store, by kind and final state.
	FlowsFinished *prometheus.CounterVec
	// EventDuration tracks time spent handling one inbound payload.
	EventDuration *prometheus.HistogramVec
	// EventsTotal tracks inbound payloads, by source and result status.
	EventsTotal *prometheus.CounterVec
	// GatewayFailures tracks failed gateway calls, by operation.
	GatewayFailures *prometheus.CounterVec
}

var _ flow.Observer = (*Recorder)(nil)

// NewRecorder registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		FlowsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flows_active",
				Help:      "Number of flows held in the store",
			},
		),
		FlowsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_created_total",
				Help:      "Total flows created",
			},
			[]string{"kind"},
		),
		FlowsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_evicted_total",
				Help:      "Total flows removed from the store",
			},
			[]string{"kind", "state"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_duration_seconds",
				Help:      "Inbound event handling duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total inbound events and interactions",
			},
			[]string{"source", "status"},
		),
		GatewayFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_failures_total",
				Help:      "Total failed gateway calls",
			},
			[]string{"op"},
		),
	}
}

// FlowCreated records a new flow.
func (r *Recorder) FlowCreated(kind flow.Kind) {
	r.FlowsCreated.WithLabelValues(string(kind)).Inc()
	r.FlowsActive.Inc()
}

// FlowEvicted records a flow leaving the store.
func (r *Recorder) FlowEvicted(kind flow.Kind, final flow.State) {
	r.FlowsFinished.WithLabelValues(string(kind), string(final)).Inc()
	r.FlowsActive.Dec()
}

// EventHandled records one inbound payload.
func (r *Recorder) EventHandled(source string, status flow.Status, elapsed time.Duration) {
	r.EventDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	r.EventsTotal.WithLabelValues(source, string(status)).Inc()
}

// GatewayFailed records a failed gateway call.
func (r *Recorder) GatewayFailed(op string) {
	r.GatewayFailures.WithLabelValues(op).Inc()
}

// Handler serves the collectors registered in gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
