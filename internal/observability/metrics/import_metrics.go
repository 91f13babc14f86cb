package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ImportMetrics tracks the analyze/finalize pipeline. Collectors are exposed
// through the /metrics handler.
type ImportMetrics struct {
	analyzedEntries  *prometheus.CounterVec
	finalizedEntries *prometheus.CounterVec
	finalizeDuration *prometheus.HistogramVec
	criticalFailures prometheus.Counter
}

func NewImportMetrics(cfg Config) *ImportMetrics {
	return newImportMetrics(prometheus.DefaultRegisterer, cfg)
}

// NewImportMetricsWithRegisterer is used by tests to avoid the global registry.
func NewImportMetricsWithRegisterer(registerer prometheus.Registerer) *ImportMetrics {
	return newImportMetrics(registerer, Config{})
}

func newImportMetrics(registerer prometheus.Registerer, cfg Config) *ImportMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pipelineintel"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ImportMetrics{
		analyzedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipelineintel_import_analyzed_entries_total",
			Help:        "Import entries classified during analysis.",
			ConstLabels: constLabels,
		}, []string{"entity_type", "status"}),
		finalizedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipelineintel_import_finalized_entries_total",
			Help:        "Import entries written, skipped or failed during finalize.",
			ConstLabels: constLabels,
		}, []string{"entity_type", "outcome"}),
		finalizeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pipelineintel_import_finalize_duration_seconds",
			Help:        "Wall time of a finalize run.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		criticalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipelineintel_import_critical_failures_total",
			Help:        "Finalize runs aborted by a store failure.",
			ConstLabels: constLabels,
		}),
	}

	m.analyzedEntries = registerOrReuse(registerer, m.analyzedEntries)
	m.finalizedEntries = registerOrReuse(registerer, m.finalizedEntries)
	m.finalizeDuration = registerOrReuse(registerer, m.finalizeDuration)
	m.criticalFailures = registerOrReuse(registerer, m.criticalFailures)

	return m
}

func registerOrReuse[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *ImportMetrics) ObserveAnalyzed(entity, status string) {
	if m == nil {
		return
	}
	m.analyzedEntries.WithLabelValues(entity, status).Inc()
}

// ObserveFinalized records an entry outcome: added, updated, unchanged, skipped or failed.
func (m *ImportMetrics) ObserveFinalized(entity, outcome string) {
	if m == nil {
		return
	}
	m.finalizedEntries.WithLabelValues(entity, outcome).Inc()
}

func (m *ImportMetrics) ObserveFinalizeDuration(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.finalizeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *ImportMetrics) IncCriticalFailure() {
	if m == nil {
		return
	}
	m.criticalFailures.Inc()
}
