package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/pipelineintel/internal/config"
)

const (
	JobStateSweep      = "state_sweep"
	JobCatalogSnapshot = "catalog_snapshot"
	JobMetricsPush     = "metrics_push"
)

// Config controls the maintenance loop.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// EnabledJobs limits which jobs run. Empty means all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	out := Config{
		RunInterval: time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
	}
	for _, job := range strings.Split(cfg.SchedulerJobs, ",") {
		if job = strings.TrimSpace(job); job != "" {
			out.EnabledJobs = append(out.EnabledJobs, job)
		}
	}
	return out.withDefaults()
}
