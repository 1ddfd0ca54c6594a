package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shiftbot/internal/model"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Runs            *prometheus.CounterVec
	Items           *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	LastRunSuccess  prometheus.Gauge
	LastRunFinished prometheus.Gauge
}

// NewMetrics registers the pipeline metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftbot_runs_total",
			Help: "Total number of pipeline runs by result",
		}, []string{"result"}),
		Items: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftbot_items_total",
			Help: "Per-run counters summed over all runs",
		}, []string{"counter"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shiftbot_run_duration_seconds",
			Help:    "Time spent in one pipeline run",
			Buckets: prometheus.DefBuckets,
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiftbot_last_run_success",
			Help: "1 if the last run finished without a fatal error",
		}),
		LastRunFinished: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shiftbot_last_run_finished_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// ObserveRun records the outcome of one run
func (m *Metrics) ObserveRun(c model.Counters, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Runs.WithLabelValues(result).Inc()

	m.Items.WithLabelValues("scanned").Add(float64(c.Scanned))
	m.Items.WithLabelValues("matched").Add(float64(c.Matched))
	m.Items.WithLabelValues("parsed").Add(float64(c.Parsed))
	m.Items.WithLabelValues("upserted").Add(float64(c.Upserted))
	m.Items.WithLabelValues("skipped").Add(float64(c.Skipped))
	m.Items.WithLabelValues("failures").Add(float64(c.Failures))

	m.RunDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.LastRunFinished.SetToCurrentTime()
}

// Skipped records a run that did not start because another one was active
func (m *Metrics) Skipped() {
	m.Runs.WithLabelValues("skipped").Inc()
}
