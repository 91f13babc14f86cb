package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics covers the maintenance jobs and the catalog size gauges
// they refresh.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	catalogRows *prometheus.GaugeVec
}

func NewSchedulerMetrics(cfg Config) *SchedulerMetrics {
	return newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
}

func NewSchedulerMetricsWithRegisterer(registerer prometheus.Registerer) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, Config{})
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pipelineintel"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipelineintel_scheduler_job_runs_total",
			Help:        "Maintenance job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipelineintel_scheduler_job_errors_total",
			Help:        "Maintenance job failures, timeouts included.",
			ConstLabels: constLabels,
		}, []string{"job", "kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pipelineintel_scheduler_job_duration_seconds",
			Help:        "Maintenance job wall time.",
			Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			ConstLabels: constLabels,
		}, []string{"job"}),
		catalogRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "pipelineintel_catalog_rows",
			Help:        "Row count per catalog table at the last snapshot.",
			ConstLabels: constLabels,
		}, []string{"table"}),
	}

	if registerer != nil {
		m.jobRuns = registerOrReuse(registerer, m.jobRuns)
		m.jobErrors = registerOrReuse(registerer, m.jobErrors)
		m.jobDuration = registerOrReuse(registerer, m.jobDuration)
		m.catalogRows = registerOrReuse(registerer, m.catalogRows)
	}
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// IncJobError records a failed run; kind is "timeout" or "error".
func (m *SchedulerMetrics) IncJobError(job, kind string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, kind).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) SetCatalogRows(table string, count int64) {
	if m == nil {
		return
	}
	m.catalogRows.WithLabelValues(table).Set(float64(count))
}
