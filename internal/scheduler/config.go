package scheduler

import (
	"time"

	"github.com/smallbiznis/verdant/internal/config"
)

// Config controls scheduler intervals, batch sizes and the allocation window.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	YearsBack       int
	JobTimeout      time.Duration
	AllocateTimeout time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Hour,
		BatchSize:       100,
		YearsBack:       3,
		JobTimeout:      5 * time.Minute,
		AllocateTimeout: 30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		BatchSize:   cfg.Scheduler.RebuildBatch,
		YearsBack:   cfg.Scheduler.YearsBack,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.YearsBack <= 0 {
		c.YearsBack = defaults.YearsBack
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.AllocateTimeout <= 0 {
		c.AllocateTimeout = defaults.AllocateTimeout
	}
	return c
}
