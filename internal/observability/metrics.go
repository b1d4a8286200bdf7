package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fireweather_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for an archive run.
type Metrics struct {
	DatesProcessed   prometheus.Counter
	RastersRead      prometheus.Counter
	RastersMissing   *prometheus.CounterVec // labels: index
	ReadingsProduced prometheus.Counter
	ReadingsMissing  prometheus.Counter
	ArchiveRows      prometheus.Gauge
	LastArchivedDate prometheus.Gauge
	PipelineRunning  prometheus.Gauge

	RunDuration  prometheus.Histogram
	DateDuration prometheus.Histogram

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		DatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_processed_total",
			Help:      "Total days aggregated into the archive.",
		}),
		RastersRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_read_total",
			Help:      "Total index rasters read.",
		}),
		RastersMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_missing_total",
			Help:      "Index rasters expected but not found, by index.",
		}, []string{"index"}),
		ReadingsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_produced_total",
			Help:      "Total (date, region, index) readings produced.",
		}),
		ReadingsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_missing_total",
			Help:      "Readings recorded as missing, from absent rasters or empty masks.",
		}),
		ArchiveRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_rows",
			Help:      "Rows written to the archive by the last run.",
		}),
		LastArchivedDate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_archived_date_seconds",
			Help:      "Latest archived day as a unix timestamp.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete archive update.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		DateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "date_duration_seconds",
			Help:      "Duration of aggregating all indices for one day.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DatesProcessed,
		m.RastersRead,
		m.RastersMissing,
		m.ReadingsProduced,
		m.ReadingsMissing,
		m.ArchiveRows,
		m.LastArchivedDate,
		m.PipelineRunning,
		m.RunDuration,
		m.DateDuration,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry the metrics are registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// WriteTextfile writes the current metric values in the node_exporter
// textfile-collector format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Gatherer())
}
