// Package metricspush ships the process metrics to a remote Prometheus
// endpoint for deployments that cannot be scraped.
package metricspush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	// MetricPrefix selects the families owned by this service. Runtime and
	// driver metrics stay on the scrape endpoint.
	MetricPrefix = "pipelineintel_"

	defaultPushTimeout = 5 * time.Second
)

var ErrMissingJob = errors.New("metrics_push_job_required")

// Pusher sends one snapshot of a gatherer. The scheduler drives it.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher picks the exporter named by METRICS_PUSH_EXPORTER. A missing or
// broken setting is logged and returns nil, which leaves pushing off.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	exporter := strings.ToLower(strings.TrimSpace(cfg.MetricsPushExporter))
	if exporter == "" {
		return nil
	}
	log := logger.Named("metrics.push").With(zap.String("exporter", exporter))

	endpoint := strings.TrimSpace(cfg.MetricsPushEndpoint)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		log.Warn("metrics push disabled", zap.String("endpoint", endpoint), zap.Error(err))
		return nil
	}

	job := strings.TrimSpace(cfg.AppName)
	labels := map[string]string{"job": job, "environment": strings.TrimSpace(cfg.Environment)}
	switch exporter {
	case ExporterRemoteWrite:
		p := NewRemoteWritePusher(endpoint, strings.TrimSpace(cfg.MetricsPushToken))
		p.externalLabels = labels
		log.Info("metrics push enabled", zap.String("endpoint", endpoint))
		return p
	case ExporterPushgateway:
		log.Info("metrics push enabled", zap.String("endpoint", endpoint))
		return NewPushgatewayPusher(endpoint, job, map[string]string{"environment": labels["environment"]})
	default:
		log.Warn("metrics push disabled", zap.Error(fmt.Errorf("unknown exporter %q", exporter)))
		return nil
	}
}

// RemoteWritePusher posts a snappy-compressed WriteRequest with one sample
// per series of the service's own metric families.
type RemoteWritePusher struct {
	endpoint       string
	authToken      string
	externalLabels map[string]string
	httpClient     *http.Client
	now            func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: defaultPushTimeout},
		now:        time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	series := toTimeSeries(families, p.externalLabels, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}
	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher replaces the job's group on a Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{endpoint: endpoint, job: strings.TrimSpace(job), grouping: grouping}
}

func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	if p.job == "" {
		return ErrMissingJob
	}

	keys := make([]string, 0, len(p.grouping))
	for key := range p.grouping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pusher := push.New(p.endpoint, p.job).Gatherer(gatherer)
	for _, key := range keys {
		name, value := strings.TrimSpace(key), strings.TrimSpace(p.grouping[key])
		if name != "" && value != "" {
			pusher = pusher.Grouping(name, value)
		}
	}
	return pusher.PushContext(ctx)
}

// toTimeSeries flattens the service's families into remote-write series.
// Counters and gauges give one series each; histograms and summaries are
// reduced to their _sum and _count series. External labels never override a
// label the metric already carries.
func toTimeSeries(families []*dto.MetricFamily, external map[string]string, timestampMs int64) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	for _, family := range families {
		name := family.GetName()
		if !strings.HasPrefix(name, MetricPrefix) {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, s := range samplesOf(family.GetType(), name, metric) {
				series = append(series, prompb.TimeSeries{
					Labels:  seriesLabels(s.name, metric.GetLabel(), external),
					Samples: []prompb.Sample{{Value: s.value, Timestamp: timestampMs}},
				})
			}
		}
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Labels[0].Value < series[j].Labels[0].Value
	})
	return series
}

type namedSample struct {
	name  string
	value float64
}

func samplesOf(kind dto.MetricType, name string, metric *dto.Metric) []namedSample {
	switch kind {
	case dto.MetricType_COUNTER:
		if c := metric.GetCounter(); c != nil {
			return []namedSample{{name, c.GetValue()}}
		}
	case dto.MetricType_GAUGE:
		if g := metric.GetGauge(); g != nil {
			return []namedSample{{name, g.GetValue()}}
		}
	case dto.MetricType_HISTOGRAM:
		if h := metric.GetHistogram(); h != nil {
			return []namedSample{{name + "_sum", h.GetSampleSum()}, {name + "_count", float64(h.GetSampleCount())}}
		}
	case dto.MetricType_SUMMARY:
		if s := metric.GetSummary(); s != nil {
			return []namedSample{{name + "_sum", s.GetSampleSum()}, {name + "_count", float64(s.GetSampleCount())}}
		}
	}
	return nil
}

// seriesLabels returns __name__ followed by the remaining labels in name order.
func seriesLabels(name string, pairs []*dto.LabelPair, external map[string]string) []prompb.Label {
	seen := make(map[string]bool, len(pairs))
	labels := make([]prompb.Label, 0, len(pairs)+len(external))
	for _, pair := range pairs {
		seen[pair.GetName()] = true
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}
	for key, value := range external {
		if value != "" && !seen[key] {
			labels = append(labels, prompb.Label{Name: key, Value: value})
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return append([]prompb.Label{{Name: "__name__", Value: name}}, labels...)
}
