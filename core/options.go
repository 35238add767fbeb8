package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader exposes a fixed map as a raw config source,
// mostly for composition roots and tests.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded config and runtime overrides in
// ascending precedence through a go-options layer stack.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	scheduler := map[string]any{}
	if includeZero || cfg.Scheduler.TickSeconds > 0 {
		scheduler["tick_seconds"] = cfg.Scheduler.TickSeconds
	}
	if includeZero || cfg.Scheduler.ClaimBatchSize > 0 {
		scheduler["claim_batch_size"] = cfg.Scheduler.ClaimBatchSize
	}
	if includeZero || cfg.Scheduler.RetryBackoffSeconds > 0 {
		scheduler["retry_backoff_seconds"] = cfg.Scheduler.RetryBackoffSeconds
	}
	if includeZero || cfg.Scheduler.MaxAttempts > 0 {
		scheduler["max_attempts"] = cfg.Scheduler.MaxAttempts
	}
	if includeZero || cfg.Scheduler.ToleranceSeconds > 0 {
		scheduler["tolerance_seconds"] = cfg.Scheduler.ToleranceSeconds
	}
	if includeZero || cfg.Scheduler.RecurringIntervalSeconds > 0 {
		scheduler["recurring_interval_seconds"] = cfg.Scheduler.RecurringIntervalSeconds
	}
	if len(scheduler) > 0 {
		layer["scheduler"] = scheduler
	}

	rotation := map[string]any{}
	if includeZero || cfg.Rotation.LockTTLSeconds > 0 {
		rotation["lock_ttl_seconds"] = cfg.Rotation.LockTTLSeconds
	}
	if includeZero || cfg.Rotation.PersistRawKeys {
		rotation["persist_raw_keys"] = cfg.Rotation.PersistRawKeys
	}
	if len(rotation) > 0 {
		layer["rotation"] = rotation
	}

	return layer
}

// ResolveConfig is the composition-root entry point: load through the
// provider when present, then merge runtime overrides on top.
func ResolveConfig(
	ctx context.Context,
	provider ConfigProvider,
	resolver OptionsResolver,
	runtime Config,
) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if provider != nil {
		cfg, err := provider.Load(ctx, defaults)
		if err != nil {
			return Config{}, err
		}
		loaded = cfg
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, runtime)
}
