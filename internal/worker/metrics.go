package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "velov_ingest_"

// Run outcomes.
const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeFailed  = "failed"
)

// Metrics holds the Prometheus collectors of the ingest job.
type Metrics struct {
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	stationsUpserted   prometheus.Counter
	upsertFailures     prometheus.Counter
	statusRowsInserted prometheus.Counter
	insertFailures     prometheus.Counter
	lastSuccess        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total ingest runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_duration_seconds",
				Help:    "Ingest run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		stationsUpserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stations_upserted_total",
				Help: "Total stations upserted",
			},
		),
		upsertFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "station_upsert_failures_total",
				Help: "Total station upserts rejected by the store",
			},
		),
		statusRowsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_rows_inserted_total",
				Help: "Total status log rows inserted",
			},
		),
		insertFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_insert_failures_total",
				Help: "Total status log batches rejected by the store",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_success_timestamp_seconds",
				Help: "Unix time of the last run without errors",
			},
		),
	}

	reg.MustRegister(
		m.runs,
		m.runDuration,
		m.stationsUpserted,
		m.upsertFailures,
		m.statusRowsInserted,
		m.insertFailures,
		m.lastSuccess,
	)
	return m
}

func (m *Metrics) observe(result *IngestResult, outcome string) {
	if m == nil {
		return
	}

	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(result.Duration.Seconds())
	m.stationsUpserted.Add(float64(result.Sync.Upserted))
	m.upsertFailures.Add(float64(result.Sync.Failed))
	m.statusRowsInserted.Add(float64(result.Record.Inserted))
	if result.Record.Err != nil {
		m.insertFailures.Inc()
	}
	if outcome == outcomeSuccess {
		m.lastSuccess.Set(float64(result.EndTime.Unix()))
	}
}
