package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background batch jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	invoices *prometheus.CounterVec
	alerts   prometheus.Counter
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When
// the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation for a single batch run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track spawns a tracker for the given task type.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End finalises the tracker, recording duration and run status, and returns
// the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.task, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// AddInvoices records per-invoice outcomes of a finished batch.
func (m *Metrics) AddInvoices(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoices.WithLabelValues(outcome).Add(float64(count))
}

// AddAlerts records price alerts raised during a batch.
func (m *Metrics) AddAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invio_batch_runs_total",
		Help: "Total batch job executions partitioned by task type and status.",
	}, []string{"task", "status"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invio_batch_invoices_total",
		Help: "Invoices processed by batch jobs partitioned by outcome.",
	}, []string{"outcome"})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invio_price_alerts_total",
		Help: "Price alerts raised during ingestion.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invio_batch_duration_seconds",
		Help:    "Duration in seconds of batch job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	registerer.MustRegister(runs, invoices, alerts, duration)
	return &Metrics{runs: runs, invoices: invoices, alerts: alerts, duration: duration}
}
