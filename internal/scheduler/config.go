package scheduler

import (
	"time"

	"github.com/smallbiznis/crmbilling/internal/config"
)

const (
	JobExpirySweep   = "expiry_sweep"
	JobReminderSweep = "reminder_sweep"
)

// Config controls sweep schedules, batch sizes and the distributed lock.
type Config struct {
	Enabled      bool
	ExpiryCron   string
	ReminderCron string
	LockTTL      time.Duration
	JobTimeout   time.Duration
	BatchSize    int
	// EnabledJobs limits which jobs run; empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ExpiryCron:   "0 5 0 * * *",
		ReminderCron: "0 0 9 * * *",
		LockTTL:      5 * time.Minute,
		JobTimeout:   5 * time.Minute,
		BatchSize:    200,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Scheduler.Enabled,
		ExpiryCron:   cfg.Scheduler.ExpiryCron,
		ReminderCron: cfg.Scheduler.ReminderCron,
		LockTTL:      cfg.Scheduler.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ExpiryCron == "" {
		c.ExpiryCron = defaults.ExpiryCron
	}
	if c.ReminderCron == "" {
		c.ReminderCron = defaults.ReminderCron
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
