// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_chat_transcript"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Reconciliation metrics
	SnapshotsReceived  prometheus.Counter
	EventsReconciled   *prometheus.CounterVec
	EntriesAppended    *prometheus.CounterVec
	MalformedPayloads  prometheus.Counter
	ReconcileBurstSize prometheus.Histogram
	CursorResets       prometheus.Counter
	StaleSnapshots     prometheus.Counter

	// Session metrics
	IdentityBindings prometheus.Counter
	SessionSwitches  *prometheus.CounterVec
	Submissions      *prometheus.CounterVec

	// Transport publish metrics
	TransportPublishTotal   *prometheus.CounterVec
	TransportPublishErrors  *prometheus.CounterVec
	TransportPublishLatency *prometheus.HistogramVec
	TransportErrors         *prometheus.CounterVec

	// REST collaborator metrics
	APIRequests *prometheus.CounterVec
	APIErrors   *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// Display metrics
	DisplayClients prometheus.Gauge

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SnapshotsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_received_total",
			Help:      "Total number of event forest snapshots delivered by the transport",
		}),
		EventsReconciled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_reconciled_total",
			Help:      "Total number of flattened events consumed by reconciliation",
		}, []string{"outcome"}),
		EntriesAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_appended_total",
			Help:      "Total number of transcript entries appended",
		}, []string{"kind"}),
		MalformedPayloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_payloads_total",
			Help:      "Total number of assistant events dropped for malformed payloads",
		}),
		ReconcileBurstSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_burst_size",
			Help:      "Number of new events handled by one reconciliation pass",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50},
		}),
		CursorResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_resets_total",
			Help:      "Total number of times the flattened stream shrank below the cursor",
		}),
		StaleSnapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_snapshots_total",
			Help:      "Total number of snapshots dropped because they were built before a conversation switch",
		}),

		IdentityBindings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_bindings_total",
			Help:      "Total number of new sessions bound to a server conversation id",
		}),
		SessionSwitches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_switches_total",
			Help:      "Total number of conversation session switches",
		}, []string{"target"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of user submissions",
		}, []string{"outcome"}),

		TransportPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_publish_total",
			Help:      "Total number of outbound step events published",
		}, []string{"topic"}),
		TransportPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_publish_errors_total",
			Help:      "Total number of outbound publish errors",
		}, []string{"topic"}),
		TransportPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_publish_latency_seconds",
			Help:      "Outbound publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of errors reported by the transport subscription",
		}, []string{"provider"}),

		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of REST collaborator requests",
		}, []string{"operation"}),
		APIErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of failed REST collaborator requests",
		}, []string{"operation"}),
		APILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_latency_seconds",
			Help:      "REST collaborator latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"operation"}),

		DisplayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "display_clients",
			Help:      "Number of connected display websocket clients",
		}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_latency_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordSnapshot records a snapshot delivered by the transport.
func (m *Metrics) RecordSnapshot() {
	m.SnapshotsReceived.Inc()
}

// RecordReconciled records one consumed event. outcome is one of appended,
// skipped, malformed, foreign.
func (m *Metrics) RecordReconciled(outcome string) {
	m.EventsReconciled.WithLabelValues(outcome).Inc()
}

// RecordEntryAppended records an appended transcript entry by kind.
func (m *Metrics) RecordEntryAppended(kind string) {
	m.EntriesAppended.WithLabelValues(kind).Inc()
}

// RecordMalformed records an assistant event dropped for a bad payload.
func (m *Metrics) RecordMalformed() {
	m.MalformedPayloads.Inc()
}

// RecordBurst records the size of one reconciliation pass.
func (m *Metrics) RecordBurst(size int) {
	m.ReconcileBurstSize.Observe(float64(size))
}

// RecordCursorReset records the stream shrinking below the cursor.
func (m *Metrics) RecordCursorReset() {
	m.CursorResets.Inc()
}

// RecordStaleSnapshot records a snapshot from a previous transport generation.
func (m *Metrics) RecordStaleSnapshot() {
	m.StaleSnapshots.Inc()
}

// RecordBinding records a New → Bound transition.
func (m *Metrics) RecordBinding() {
	m.IdentityBindings.Inc()
}

// RecordSessionSwitch records a switch to a new or an existing conversation.
func (m *Metrics) RecordSessionSwitch(target string) {
	m.SessionSwitches.WithLabelValues(target).Inc()
}

// RecordSubmission records a submission outcome: accepted, ignored, rejected,
// failed.
func (m *Metrics) RecordSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

// RecordPublish records an outbound publish attempt.
func (m *Metrics) RecordPublish(topic string, err error, latencySeconds float64) {
	m.TransportPublishTotal.WithLabelValues(topic).Inc()
	m.TransportPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.TransportPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordTransportError records an error from the transport subscription.
func (m *Metrics) RecordTransportError(provider string) {
	m.TransportErrors.WithLabelValues(provider).Inc()
}

// RecordAPICall records a REST collaborator call.
func (m *Metrics) RecordAPICall(operation string, err error, latencySeconds float64) {
	m.APIRequests.WithLabelValues(operation).Inc()
	m.APILatency.WithLabelValues(operation).Observe(latencySeconds)
	if err != nil {
		m.APIErrors.WithLabelValues(operation).Inc()
	}
}

// RecordDisplayClients sets the number of connected display clients.
func (m *Metrics) RecordDisplayClients(n int) {
	m.DisplayClients.Set(float64(n))
}

// RecordGRPCCall records a finished gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}
