package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/pipelineintel/internal/catalog/catalogtest"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/config"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/state"
	obsmetrics "github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var schedulerStart = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type failingStore struct {
	importdomain.StateStore
}

func (failingStore) Sweep(context.Context) (int, error) {
	return 0, errors.New("sweep failed")
}

func newTestScheduler(t *testing.T, store importdomain.StateStore, cfg Config) (*Scheduler, *prometheus.Registry, *clock.FakeClock) {
	t.Helper()
	fc := clock.NewFakeClock(schedulerStart)
	if store == nil {
		store = state.NewMemoryStore(fc)
	}
	reg := prometheus.NewRegistry()
	m := obsmetrics.NewSchedulerMetricsWithRegisterer(reg)
	s, err := New(Params{
		DB:      catalogtest.NewDB(t),
		Log:     zap.NewNop(),
		Store:   store,
		GenID:   catalogtest.NewNode(t),
		Clock:   fc,
		Metrics: m,
		Config:  cfg,
	})
	require.NoError(t, err)
	return s, reg, fc
}

func catalogRows(t *testing.T, reg *prometheus.Registry, table string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "pipelineintel_catalog_rows" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "table" && label.GetValue() == table {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no catalog_rows sample for %s", table)
	return 0
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStateSweepJobDropsExpiredStates(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFakeClock(schedulerStart)
	store := state.NewMemoryStore(fc)
	require.NoError(t, store.Save(ctx, &importdomain.State{ID: "old"}, time.Minute))

	s, _, _ := newTestScheduler(t, store, Config{})
	fc.Advance(time.Hour)

	removed, err := s.StateSweepJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCatalogSnapshotJobSetsGauges(t *testing.T) {
	ctx := context.Background()
	s, reg, _ := newTestScheduler(t, nil, Config{})

	require.NoError(t, s.db.Create(&catalogdomain.Modality{ModalityID: 11, ModalityName: "Small Molecule", CreatedAt: schedulerStart}).Error)
	require.NoError(t, s.db.Create(&catalogdomain.Modality{ModalityID: 12, ModalityName: "Biologic", CreatedAt: schedulerStart}).Error)

	tables, err := s.CatalogSnapshotJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(catalogdomain.Models()), tables)

	assert.Equal(t, 2.0, catalogRows(t, reg, "modalities"))
	assert.Equal(t, 0.0, catalogRows(t, reg, "products"))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	s, _, _ := newTestScheduler(t, failingStore{}, Config{EnabledJobs: []string{JobCatalogSnapshot}})
	require.NoError(t, s.RunOnce(context.Background()))

	s, _, _ = newTestScheduler(t, failingStore{}, Config{})
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobStateSweep)
}

func TestRunJobTreatsDeadlineAsSoftFailure(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, Config{})
	err := s.runJob(context.Background(), "slow", func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})
	assert.NoError(t, err)
}

func TestProvideConfig(t *testing.T) {
	cfg := ProvideConfig(config.Config{SchedulerIntervalSeconds: 5, SchedulerJobs: " state_sweep , ,catalog_snapshot"})
	assert.Equal(t, 5*time.Second, cfg.RunInterval)
	assert.Equal(t, []string{JobStateSweep, JobCatalogSnapshot}, cfg.EnabledJobs)

	cfg = ProvideConfig(config.Config{})
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Empty(t, cfg.EnabledJobs)
}

type recordingPusher struct {
	pushed   int
	gatherer prometheus.Gatherer
}

func (p *recordingPusher) Push(_ context.Context, g prometheus.Gatherer) error {
	p.pushed++
	p.gatherer = g
	return nil
}

func TestMetricsPushJob(t *testing.T) {
	s, reg, _ := newTestScheduler(t, nil, Config{})

	n, err := s.MetricsPushJob(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	pusher := &recordingPusher{}
	s.pusher = pusher
	s.gatherer = reg
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, pusher.pushed)
	assert.Same(t, reg, pusher.gatherer)
}
