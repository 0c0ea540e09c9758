package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReminderRung names one step of the payment reminder ladder.
const (
	RungSent24h      = "sent_24h"
	RungDueIn3Days   = "due_in_3_days"
	RungDueToday     = "due_today"
	RungOverdue7Days = "overdue_7_days"
)

var knownRungs = []string{RungSent24h, RungDueIn3Days, RungDueToday, RungOverdue7Days}

type RungConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxSends int  `mapstructure:"maxSends"`
}

type ReminderConfig struct {
	// PaymentTermsDays is used when an invoice is created without an explicit due date
	// and billing settings carry no terms.
	PaymentTermsDays int                   `mapstructure:"paymentTermsDays"`
	BatchSize        int                   `mapstructure:"batchSize"`
	Rungs            map[string]RungConfig `mapstructure:"rungs"`
}

// Rung returns the settings for a rung, defaulting to enabled with a single send.
func (c ReminderConfig) Rung(name string) RungConfig {
	if r, ok := c.Rungs[name]; ok {
		if r.MaxSends <= 0 {
			r.MaxSends = 1
		}
		return r
	}
	return RungConfig{Enabled: true, MaxSends: 1}
}

func DefaultReminderConfig() ReminderConfig {
	rungs := make(map[string]RungConfig, len(knownRungs))
	for _, name := range knownRungs {
		rungs[name] = RungConfig{Enabled: true, MaxSends: 1}
	}
	return ReminderConfig{
		PaymentTermsDays: 7,
		BatchSize:        500,
		Rungs:            rungs,
	}
}

type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderConfig
}

// NewStaticReminderConfigHolder wraps a fixed config, used by tests and tools.
func NewStaticReminderConfigHolder(cfg ReminderConfig) *ReminderConfigHolder {
	h := &ReminderConfigHolder{}
	h.current.Store(cfg)
	return h
}

func NewReminderConfigHolder(log *zap.Logger) (*ReminderConfigHolder, error) {
	log = log.Named("config.reminders")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/crmbilling/config")
	v.AddConfigPath("/etc/crmbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CRMBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReminderConfig()
	v.SetDefault("reminders.paymentTermsDays", defaults.PaymentTermsDays)
	v.SetDefault("reminders.batchSize", defaults.BatchSize)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	cfg, err := decodeReminderConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticReminderConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeReminderConfig(v)
		if err != nil {
			log.Warn("reminder config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reminder config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReminderConfigHolder) Get() ReminderConfig {
	return h.current.Load().(ReminderConfig)
}

func decodeReminderConfig(v *viper.Viper) (ReminderConfig, error) {
	cfg := DefaultReminderConfig()
	var raw ReminderConfig
	if err := v.UnmarshalKey("reminders", &raw); err != nil {
		return ReminderConfig{}, err
	}
	if raw.PaymentTermsDays > 0 {
		cfg.PaymentTermsDays = raw.PaymentTermsDays
	}
	if raw.BatchSize > 0 {
		cfg.BatchSize = raw.BatchSize
	}
	for name, rung := range raw.Rungs {
		cfg.Rungs[name] = rung
	}
	if err := validateReminderConfig(cfg); err != nil {
		return ReminderConfig{}, err
	}
	return cfg, nil
}

func validateReminderConfig(cfg ReminderConfig) error {
	for name, rung := range cfg.Rungs {
		known := false
		for _, k := range knownRungs {
			if k == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("reminders.rungs: unknown rung %q", name)
		}
		if rung.MaxSends < 0 {
			return fmt.Errorf("reminders.rungs.%s.maxSends cannot be negative", name)
		}
	}
	if cfg.PaymentTermsDays <= 0 {
		return errors.New("reminders.paymentTermsDays must be positive")
	}
	return nil
}
