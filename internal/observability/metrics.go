// Package observability provides Prometheus metrics and logging setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Upstream metrics
	SourceRecordsFetched *prometheus.CounterVec
	SourceFetchFailures  *prometheus.CounterVec
	UpstreamRetries      *prometheus.CounterVec
	UpstreamLatency      *prometheus.HistogramVec
	EnrichmentResults    *prometheus.CounterVec

	// Cycle metrics
	CycleRunsTotal *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	SnapshotSize   prometheus.Gauge
	DeltasDetected *prometheus.CounterVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec
	CacheErrors   *prometheus.CounterVec

	// Publisher metrics
	Subscribers     prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_token_feed"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceRecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "records_fetched_total",
			Help:      "Total number of raw records returned by each source",
		}, []string{"source"}),
		SourceFetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_failures_total",
			Help:      "Total number of terminal fetch failures by source",
		}, []string{"source"}),
		UpstreamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Total number of retried upstream calls by provider",
		}, []string{"provider"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "Upstream HTTP call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		EnrichmentResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "enrichment_results_total",
			Help:      "Enrichment attempts by outcome",
		}, []string{"outcome"}),

		CycleRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of refresh cycles by trigger and status",
		}, []string{"trigger", "status"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		SnapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "snapshot_records",
			Help:      "Number of records in the latest published snapshot",
		}),
		DeltasDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "deltas_total",
			Help:      "Total number of flagged records by kind",
		}, []string{"kind"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Snapshot store lookups by result",
		}, []string{"result"}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Snapshot store errors by operation",
		}, []string{"operation"}),

		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "subscribers",
			Help:      "Number of connected push feed subscribers",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "events_published_total",
			Help:      "Total number of events broadcast by type",
		}, []string{"type"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers by type",
		}, []string{"type"}),

		LastSuccessfulCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful refresh cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordSourceFetch records the outcome of one adapter fetch.
func RecordSourceFetch(source string, records int, failed bool) {
	DefaultMetrics.SourceRecordsFetched.WithLabelValues(source).Add(float64(records))
	if failed {
		DefaultMetrics.SourceFetchFailures.WithLabelValues(source).Inc()
	}
}

// RecordUpstreamRetry increments the retry counter for a provider.
func RecordUpstreamRetry(provider string) {
	DefaultMetrics.UpstreamRetries.WithLabelValues(provider).Inc()
}

// RecordUpstreamLatency records one upstream HTTP call.
func RecordUpstreamLatency(provider string, seconds float64) {
	DefaultMetrics.UpstreamLatency.WithLabelValues(provider).Observe(seconds)
}

// RecordEnrichment records one enrichment attempt ("ok", "error", "skipped").
func RecordEnrichment(outcome string) {
	DefaultMetrics.EnrichmentResults.WithLabelValues(outcome).Inc()
}

// RecordCycle records a refresh cycle.
func RecordCycle(trigger, status string, durationSeconds float64, records int) {
	DefaultMetrics.CycleRunsTotal.WithLabelValues(trigger, status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.SnapshotSize.Set(float64(records))
	}
}

// RecordDeltas records detector output sizes.
func RecordDeltas(priceDeltas, volumeSpikes int) {
	DefaultMetrics.DeltasDetected.WithLabelValues("price_delta").Add(float64(priceDeltas))
	DefaultMetrics.DeltasDetected.WithLabelValues("volume_spike").Add(float64(volumeSpikes))
}

// RecordCacheLookup records a store lookup as "hit" or "miss".
func RecordCacheLookup(hit bool) {
	if hit {
		DefaultMetrics.CacheRequests.WithLabelValues("hit").Inc()
		return
	}
	DefaultMetrics.CacheRequests.WithLabelValues("miss").Inc()
}

// RecordCacheError records a store failure for an operation.
func RecordCacheError(operation string) {
	DefaultMetrics.CacheErrors.WithLabelValues(operation).Inc()
}

// UpdateSubscribers sets the subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordEventPublished counts one broadcast event.
func RecordEventPublished(eventType string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts one event dropped for a slow subscriber.
func RecordEventDropped(eventType string) {
	DefaultMetrics.EventsDropped.WithLabelValues(eventType).Inc()
}

// MarkCycleSuccess updates the last successful cycle timestamp.
func MarkCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}
