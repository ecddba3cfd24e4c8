package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "donation_match"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// matching service.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: provider, outcome={exact,approximate,failed,error}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss,expired}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: provider
	ProviderEnabled    *prometheus.GaugeVec     // labels: provider

	// Routing metrics.
	RouteRequests  *prometheus.CounterVec // labels: provider, outcome={success,error}
	RouteFallbacks prometheus.Counter

	// Matching metrics.
	MatchRequests   *prometheus.CounterVec // labels: outcome={ok,geocode_failed,error}
	MatchCandidates prometheus.Histogram
	MatchResults    prometheus.Histogram
	MatchDuration   prometheus.Histogram

	// Backfill worker metrics.
	BackfillPasses  *prometheus.CounterVec // labels: outcome={work,idle,error}
	BackfillRecords *prometheus.CounterVec // labels: kind, outcome={geocoded,attempted,skipped}
	BackfillRunning prometheus.Gauge

	// Match stream metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		ProviderEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_enabled",
			Help:      "1 when an external provider is configured, 0 otherwise.",
		}, []string{"provider"}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Routing provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RouteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_fallbacks_total",
			Help:      "Travel estimates that fell back to straight-line distance.",
		}),
		MatchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_requests_total",
			Help:      "Match requests by outcome.",
		}, []string{"outcome"}),
		MatchCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_candidates",
			Help:      "Candidate needs retrieved per match request.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 50, 100},
		}),
		MatchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_results",
			Help:      "Matches returned per match request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Duration of a complete match request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		BackfillPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_passes_total",
			Help:      "Backfill worker passes by outcome.",
		}, []string{"outcome"}),
		BackfillRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_records_total",
			Help:      "Records handled by the backfill worker by kind and outcome.",
		}, []string{"kind", "outcome"}),
		BackfillRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backfill_running",
			Help:      "1 when the backfill worker is active, 0 when stopped.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total messages written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total messages that could not be matched.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the match stream is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-match-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.ProviderEnabled,
		m.RouteRequests,
		m.RouteFallbacks,
		m.MatchRequests,
		m.MatchCandidates,
		m.MatchResults,
		m.MatchDuration,
		m.BackfillPasses,
		m.BackfillRecords,
		m.BackfillRunning,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		GeocodeRequests:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_requests_total"}, []string{"provider", "outcome"}),
		GeocodeCache:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "geocode_cache_total"}, []string{"result"}),
		GeocodeAPIDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "geocode_api_duration_seconds"}, []string{"provider"}),
		ProviderEnabled:         prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "provider_enabled"}, []string{"provider"}),
		RouteRequests:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "route_requests_total"}, []string{"provider", "outcome"}),
		RouteFallbacks:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "route_fallbacks_total"}),
		MatchRequests:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "match_requests_total"}, []string{"outcome"}),
		MatchCandidates:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_candidates"}),
		MatchResults:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_results"}),
		MatchDuration:           prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_duration_seconds"}),
		BackfillPasses:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "backfill_passes_total"}, []string{"outcome"}),
		BackfillRecords:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "backfill_records_total"}, []string{"kind", "outcome"}),
		BackfillRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "backfill_running"}),
		MessagesConsumed:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_consumed_total"}),
		MessagesProduced:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_produced_total"}),
		TransformErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "transform_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
	}
}
