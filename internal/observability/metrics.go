package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outbreak_lookup"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refresh scheduler and the lookup service.
type Metrics struct {
	SchedulerRunning prometheus.Gauge

	// Refresh cycle metrics.
	Refreshes          *prometheus.CounterVec // labels: outcome={success,failure}
	RefreshDuration    prometheus.Histogram
	RefreshInFlight    prometheus.Gauge
	LastRefreshSuccess prometheus.Gauge
	FetchErrors        *prometheus.CounterVec   // labels: source
	FetchDuration      *prometheus.HistogramVec // labels: source

	// Current snapshot size.
	SnapshotCountries prometheus.Gauge
	SnapshotAreas     prometheus.Gauge
	SnapshotDocuments prometheus.Gauge

	// Query metrics.
	Lookups     *prometheus.CounterVec // labels: outcome={unique,ambiguous,too_many,not_found}
	LookupCache *prometheus.CounterVec // labels: result={hit,miss}

	MessagesProduced prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SchedulerRunning,
		m.Refreshes,
		m.RefreshDuration,
		m.RefreshInFlight,
		m.LastRefreshSuccess,
		m.FetchErrors,
		m.FetchDuration,
		m.SnapshotCountries,
		m.SnapshotAreas,
		m.SnapshotDocuments,
		m.Lookups,
		m.LookupCache,
		m.MessagesProduced,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the refresh scheduler is active, 0 when shut down.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-index cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RefreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_in_flight",
			Help:      "1 while a refresh cycle is running.",
		}),
		LastRefreshSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Feed fetch or parse failures by source.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Feed download and parse duration by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SnapshotCountries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_countries",
			Help:      "Countries in the current snapshot.",
		}),
		SnapshotAreas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_areas",
			Help:      "Areas in the current snapshot.",
		}),
		SnapshotDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_documents",
			Help:      "Search documents in the current snapshot.",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Location lookups by outcome.",
		}, []string{"outcome"}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_total",
			Help:      "Resolution cache lookups by result.",
		}, []string{"result"}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total snapshot messages written to Kafka.",
		}),
	}
}
