package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "pipelineintel_catalog_rows"}, []string{"table"})
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "pipelineintel_scheduler_job_runs_total"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "pipelineintel_latency_seconds"})
	reg.MustRegister(rows, runs, latency)

	rows.WithLabelValues("products").Set(7)
	runs.Add(3)
	latency.Observe(0.2)
	return reg
}

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite, MetricsPushEndpoint: "::bad"}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: "statsd", MetricsPushEndpoint: "http://x"}, log))

	p := NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite, MetricsPushEndpoint: "http://metrics.local/api/v1/write"}, log)
	assert.IsType(t, &RemoteWritePusher{}, p)

	p = NewPusher(config.Config{AppName: "pipelineintel", MetricsPushExporter: ExporterPushgateway, MetricsPushEndpoint: "http://gateway:9091"}, log)
	assert.IsType(t, &PushgatewayPusher{}, p)
}

func TestToTimeSeriesKeepsServiceFamilies(t *testing.T) {
	reg := testRegistry(t)
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "go_gc_total"})
	reg.MustRegister(other)
	other.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	series := toTimeSeries(families, map[string]string{"environment": "staging", "table": "ignored"}, 1000)
	require.Len(t, series, 4)

	byName := map[string]prompb.TimeSeries{}
	for _, ts := range series {
		byName[ts.Labels[0].Value] = ts
	}
	assert.NotContains(t, byName, "go_gc_total")

	rows := byName["pipelineintel_catalog_rows"]
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "pipelineintel_catalog_rows"},
		{Name: "environment", Value: "staging"},
		{Name: "table", Value: "products"},
	}, rows.Labels)
	assert.Equal(t, 7.0, rows.Samples[0].Value)
	assert.Equal(t, int64(1000), rows.Samples[0].Timestamp)

	assert.Equal(t, 3.0, byName["pipelineintel_scheduler_job_runs_total"].Samples[0].Value)
	assert.Equal(t, 1.0, byName["pipelineintel_latency_seconds_count"].Samples[0].Value)
	assert.InDelta(t, 0.2, byName["pipelineintel_latency_seconds_sum"].Samples[0].Value, 1e-9)
}

func TestRemoteWritePusherPostsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewRemoteWritePusher(srv.URL, "secret")
	p.now = func() time.Time { return time.UnixMilli(5000) }
	require.NoError(t, p.Push(context.Background(), testRegistry(t)))

	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	require.Len(t, got.Timeseries, 4)
	assert.Equal(t, int64(5000), got.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushgatewayPusherPutsGroup(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushgatewayPusher(srv.URL, "pipelineintel", map[string]string{"environment": "staging", "blank": " "})
	require.NoError(t, p.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/pipelineintel/environment/staging", path)

	assert.ErrorIs(t, NewPushgatewayPusher(srv.URL, "", nil).Push(context.Background(), testRegistry(t)), ErrMissingJob)
}
