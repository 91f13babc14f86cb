package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	catalogdomain "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	importdomain "github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/metricspush"
	obscontext "github.com/smallbiznis/pipelineintel/internal/observability/context"
	obslogger "github.com/smallbiznis/pipelineintel/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Sweeper is implemented by state stores that need expired entries purged.
// Redis expires keys itself and does not implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Store   importdomain.StateStore
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Pusher  metricspush.Pusher           `optional:"true"`
	Config  Config                       `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	store    importdomain.StateStore
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *obsmetrics.SchedulerMetrics
	pusher   metricspush.Pusher
	gatherer prometheus.Gatherer
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Store == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		store:    p.Store,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
		pusher:   p.Pusher,
		gatherer: prometheus.DefaultGatherer,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "scheduler")
	runID := s.genID.Generate().String()
	log := obslogger.WithRun(obslogger.WithContext(ctx, s.log), runID).With(zap.String("job", name))
	log.Debug("scheduler.job.start")
	s.metrics.IncJobRun(name)

	processed, err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveJobDuration(name, elapsed)

	fields := []zap.Field{
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int("processed_count", processed),
	}
	if err == nil {
		log.Info("scheduler.job.finish", fields...)
		return nil
	}

	// a deadline is a soft failure, the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobError(name, "timeout")
		log.Warn("job timed out", append(fields, zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))...)
		return nil
	}
	s.metrics.IncJobError(name, "error")
	log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job one time and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) (int, error)
	}{
		{JobStateSweep, s.StateSweepJob},
		{JobCatalogSnapshot, s.CatalogSnapshotJob},
		{JobMetricsPush, s.MetricsPushJob},
	}

	var err error
	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// StateSweepJob purges expired resolution states from stores that keep
// them in process.
func (s *Scheduler) StateSweepJob(ctx context.Context) (int, error) {
	sweeper, ok := s.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.Sweep(ctx)
}

// CatalogSnapshotJob refreshes the per-table row gauges.
func (s *Scheduler) CatalogSnapshotJob(ctx context.Context) (int, error) {
	tables := 0
	for _, model := range catalogdomain.Models() {
		if err := ctx.Err(); err != nil {
			return tables, err
		}
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(model); err != nil {
			return tables, err
		}

		var count int64
		if err := s.db.WithContext(ctx).Table(stmt.Schema.Table).Count(&count).Error; err != nil {
			return tables, err
		}
		s.metrics.SetCatalogRows(stmt.Schema.Table, count)
		tables++
	}
	return tables, nil
}

// MetricsPushJob ships the current metrics when a pusher is configured.
// It runs after the snapshot so the catalog gauges are fresh.
func (s *Scheduler) MetricsPushJob(ctx context.Context) (int, error) {
	if s.pusher == nil {
		return 0, nil
	}
	if err := s.pusher.Push(ctx, s.gatherer); err != nil {
		return 0, err
	}
	return 1, nil
}
