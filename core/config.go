package core

import (
	"fmt"
	"strings"
	"time"
)

type SchedulerConfig struct {
	TickSeconds              int `koanf:"tick_seconds" mapstructure:"tick_seconds"`
	ClaimBatchSize           int `koanf:"claim_batch_size" mapstructure:"claim_batch_size"`
	RetryBackoffSeconds      int `koanf:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`
	MaxAttempts              int `koanf:"max_attempts" mapstructure:"max_attempts"`
	ToleranceSeconds         int `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
	RecurringIntervalSeconds int `koanf:"recurring_interval_seconds" mapstructure:"recurring_interval_seconds"`
}

func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

func (c SchedulerConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

func (c SchedulerConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

func (c SchedulerConfig) RecurringInterval() time.Duration {
	return time.Duration(c.RecurringIntervalSeconds) * time.Second
}

type RotationConfig struct {
	LockTTLSeconds int  `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
	PersistRawKeys bool `koanf:"persist_raw_keys" mapstructure:"persist_raw_keys"`
}

func (c RotationConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Scheduler   SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
	Rotation    RotationConfig  `koanf:"rotation" mapstructure:"rotation"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "sendgate",
		Scheduler: SchedulerConfig{
			TickSeconds:              30,
			ClaimBatchSize:           5,
			RetryBackoffSeconds:      60,
			MaxAttempts:              DefaultJobMaxAttempts,
			ToleranceSeconds:         60,
			RecurringIntervalSeconds: 3600,
		},
		Rotation: RotationConfig{
			LockTTLSeconds: 30,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("core: scheduler.tick_seconds must be positive")
	}
	if c.Scheduler.ClaimBatchSize <= 0 {
		return fmt.Errorf("core: scheduler.claim_batch_size must be positive")
	}
	if c.Scheduler.RetryBackoffSeconds <= 0 {
		return fmt.Errorf("core: scheduler.retry_backoff_seconds must be positive")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("core: scheduler.max_attempts must be positive")
	}
	if c.Scheduler.ToleranceSeconds <= 0 {
		return fmt.Errorf("core: scheduler.tolerance_seconds must be positive")
	}
	if c.Scheduler.RecurringIntervalSeconds <= 0 {
		return fmt.Errorf("core: scheduler.recurring_interval_seconds must be positive")
	}
	if c.Rotation.LockTTLSeconds <= 0 {
		return fmt.Errorf("core: rotation.lock_ttl_seconds must be positive")
	}
	return nil
}
