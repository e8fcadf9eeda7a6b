package pool

import (
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/nqb9811/worker-pool/pkg/metrics"
)

// DefaultAutoShrinkInterval is the idle-worker reclamation period used
// when the configuration does not set one.
const DefaultAutoShrinkInterval = 5 * time.Minute

// Config holds construction options for a pool.
type Config struct {
	// Factory builds the worker-side runner for each spawned worker.
	// Required.
	Factory RunnerFactory

	// WorkerOptions is passed through to Factory opaquely.
	WorkerOptions any

	// PoolSize pins the pool to a fixed size (no autoscaling).
	// Exclusive with MinPoolSize/MaxPoolSize.
	PoolSize int

	// MinPoolSize and MaxPoolSize bound an autoscaling pool: the pool
	// grows one worker at a time under load and shrinks back on the
	// auto-shrink timer.
	MinPoolSize int
	MaxPoolSize int

	// UsePriorityTaskQueue selects a priority wait list (lower
	// Task.Priority runs first) instead of submission order.
	UsePriorityTaskQueue bool

	// AutoShrinkInterval is the period of the idle-worker reclamation
	// timer. The scheduler rounds periods below one second up to one
	// second. Defaults to DefaultAutoShrinkInterval.
	AutoShrinkInterval time.Duration

	// Name labels metrics and log entries for this pool.
	Name string

	// Logger receives pool diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics receives pool instrumentation; nil disables it.
	Metrics *metrics.Registry
}

// normalize validates cfg and resolves the sizing options to a
// [MinPoolSize, MaxPoolSize] range.
func (cfg *Config) normalize() error {
	if cfg.Factory == nil {
		return fmt.Errorf("pool: config requires a runner factory")
	}
	if cfg.PoolSize != 0 {
		if cfg.MinPoolSize != 0 || cfg.MaxPoolSize != 0 {
			return fmt.Errorf("pool: PoolSize is exclusive with MinPoolSize/MaxPoolSize")
		}
		if cfg.PoolSize < 0 {
			return fmt.Errorf("pool: PoolSize must be positive, got %d", cfg.PoolSize)
		}
		cfg.MinPoolSize = cfg.PoolSize
		cfg.MaxPoolSize = cfg.PoolSize
	}
	if cfg.MinPoolSize <= 0 {
		return fmt.Errorf("pool: MinPoolSize must be positive, got %d", cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize < cfg.MinPoolSize {
		return fmt.Errorf("pool: MaxPoolSize %d below MinPoolSize %d", cfg.MaxPoolSize, cfg.MinPoolSize)
	}
	if cfg.AutoShrinkInterval <= 0 {
		cfg.AutoShrinkInterval = DefaultAutoShrinkInterval
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return nil
}

// fileConfig mirrors the YAML configuration file.
type fileConfig struct {
	Name                 string `yaml:"name"`
	PoolSize             int    `yaml:"pool_size"`
	MinPoolSize          int    `yaml:"min_pool_size"`
	MaxPoolSize          int    `yaml:"max_pool_size"`
	UsePriorityTaskQueue bool   `yaml:"use_priority_task_queue"`
	AutoShrinkIntervalMS int    `yaml:"auto_shrink_interval_ms"`
}

// Load reads pool sizing and queue options from a YAML file. Runtime
// values (factory, logger, metrics) are filled in by the caller before
// passing the result to NewWithConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("pool: parsing %s: %w", path, err)
	}
	cfg := Config{
		Name:                 fc.Name,
		PoolSize:             fc.PoolSize,
		MinPoolSize:          fc.MinPoolSize,
		MaxPoolSize:          fc.MaxPoolSize,
		UsePriorityTaskQueue: fc.UsePriorityTaskQueue,
	}
	if fc.AutoShrinkIntervalMS > 0 {
		cfg.AutoShrinkInterval = time.Duration(fc.AutoShrinkIntervalMS) * time.Millisecond
	}
	return cfg, nil
}
