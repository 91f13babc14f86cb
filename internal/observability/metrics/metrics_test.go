package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("entity_type", "products"),
		attribute.String("product_code", "PRD-1"),
		attribute.String("kind", "trace"),
	)
	assert.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("entity_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("kind"), attrs[1].Key)
}

func TestImportMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewImportMetricsWithRegisterer(reg)

	m.ObserveAnalyzed("products", "new")
	m.ObserveAnalyzed("products", "new")
	m.ObserveFinalized("products", "added")
	m.ObserveFinalizeDuration(true, 20*time.Millisecond)
	m.IncCriticalFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyzedEntries.WithLabelValues("products", "new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finalizedEntries.WithLabelValues("products", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.criticalFailures))
}

func TestImportMetricsNilSafe(t *testing.T) {
	var m *ImportMetrics
	m.ObserveAnalyzed("products", "new")
	m.ObserveFinalized("products", "added")
	m.IncCriticalFailure()
}

func TestImportMetricsReuseRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewImportMetricsWithRegisterer(reg)
	second := NewImportMetricsWithRegisterer(reg)

	first.ObserveAnalyzed("modalities", "update")
	assert.Equal(t, 1.0, testutil.ToFloat64(second.analyzedEntries.WithLabelValues("modalities", "update")))
}

func TestSchedulerMetricsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetricsWithRegisterer(reg)

	m.IncJobRun("catalog_snapshot")
	m.IncJobError("catalog_snapshot", "timeout")
	m.SetCatalogRows("products", 12)
	m.SetCatalogRows("products", 14)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("catalog_snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues("catalog_snapshot", "timeout")))
	assert.Equal(t, 14.0, testutil.ToFloat64(m.catalogRows.WithLabelValues("products")))

	var none *SchedulerMetrics
	none.SetCatalogRows("products", 1)
	none.ObserveJobDuration("state_sweep", time.Second)
}

func TestCatalogCountersTrimAndFilter(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{}, provider)
	require.NoError(t, err)
	m.RecordCatalogEdit(ctx, " products ", "product_name")
	m.RecordCatalogEdit(ctx, "products", "product_name")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var edits metricdata.Sum[int64]
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if md.Name == "pipelineintel_catalog_edits_total" {
			edits = md.Data.(metricdata.Sum[int64])
		}
	}
	require.Len(t, edits.DataPoints, 1)
	point := edits.DataPoints[0]
	assert.Equal(t, int64(2), point.Value)
	entity, ok := point.Attributes.Value("entity_type")
	require.True(t, ok)
	assert.Equal(t, "products", entity.AsString())
}
