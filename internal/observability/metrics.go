package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "safe_route"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Consensus metrics.
	Reports        *prometheus.CounterVec // labels: outcome={accepted,duplicate,invalid}
	ActiveClusters prometheus.Gauge

	// Route evaluation metrics.
	ScoringRequests *prometheus.CounterVec // labels: outcome={success,error}
	ScoringDuration prometheus.Histogram
	RouteSelections *prometheus.CounterVec // labels: result={selected,no_safe_route}

	// Navigation metrics.
	NavigationActive prometheus.Gauge
	Deviations       prometheus.Counter
	PositionFixes    *prometheus.CounterVec // labels: outcome={ok,error,stale}

	// Directions provider metrics.
	DirectionsRequests    *prometheus.CounterVec   // labels: method={directions,geocode}, outcome={success,error,empty}
	DirectionsCache       *prometheus.CounterVec   // labels: method={directions,geocode}, result={hit,miss}
	DirectionsAPIDuration *prometheus.HistogramVec // labels: method={directions,geocode}

	// Report ingestion metrics.
	IngestMessages      prometheus.Counter
	IngestErrors        *prometheus.CounterVec // labels: reason={parse,duplicate}
	IngestBatchSize     prometheus.Histogram
	IngestBatchDuration prometheus.Histogram
	IngestRunning       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.Reports,
		m.ActiveClusters,
		m.ScoringRequests,
		m.ScoringDuration,
		m.RouteSelections,
		m.NavigationActive,
		m.Deviations,
		m.PositionFixes,
		m.DirectionsRequests,
		m.DirectionsCache,
		m.DirectionsAPIDuration,
		m.IngestMessages,
		m.IngestErrors,
		m.IngestBatchSize,
		m.IngestBatchDuration,
		m.IngestRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      help("Report submissions by outcome."),
		}, []string{"outcome"}),
		ActiveClusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clusters",
			Help:      help("Validated risk clusters at the last query."),
		}),
		ScoringRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_requests_total",
			Help:      help("Risk-scoring requests by outcome."),
		}, []string{"outcome"}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      help("Duration of one candidate scoring request."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RouteSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_selections_total",
			Help:      help("Route selections by result."),
		}, []string{"result"}),
		NavigationActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "navigation_active",
			Help:      help("1 while a navigation session is ACTIVE, 0 otherwise."),
		}),
		Deviations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deviations_total",
			Help:      help("Deviation events emitted."),
		}),
		PositionFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_fixes_total",
			Help:      help("Position fixes received by outcome."),
		}, []string{"outcome"}),
		DirectionsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_requests_total",
			Help:      help("Mapbox requests by method and outcome."),
		}, []string{"method", "outcome"}),
		DirectionsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_cache_total",
			Help:      help("Mapbox cache lookups by method and result."),
		}, []string{"method", "result"}),
		DirectionsAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directions_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		IngestMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      help("Report messages read from the reports topic."),
		}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      help("Report messages skipped by reason."),
		}, []string{"reason"}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_size",
			Help:      help("Number of messages per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		IngestBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      help("Duration of a complete extract-parse-store batch."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      help("1 when the ingest pipeline is active, 0 when shut down."),
		}),
	}
}
