// Package config loads pipeline tuning parameters through a layered
// Koanf configuration: built-in defaults, an optional YAML file, then
// environment variables, in ascending priority.
package config

import (
	"fmt"
	"time"
)

// BatchingConfig mirrors internal/batching.Config's tunable fields in a
// form Koanf can unmarshal (no Clock/Executor: those are runtime
// collaborators, injected in code, never loaded from config).
type BatchingConfig struct {
	MaxBatchSize       int           `koanf:"max_batch_size"`
	MaxBatchOpen       time.Duration `koanf:"max_batch_open"`
	MaxInflightBatches int           `koanf:"max_inflight_batches"`
	// PoolWorkers is the size of the executor's worker pool. Zero means
	// use an unbounded GoroutineExecutor instead of a PoolExecutor.
	PoolWorkers int `koanf:"pool_workers"`
}

// SinkConfig configures the sink stage's resilience behavior.
type SinkConfig struct {
	// CircuitBreakerEnabled turns on the sink's gobreaker wrapper.
	CircuitBreakerEnabled bool `koanf:"circuit_breaker_enabled"`
	// FailureThreshold is the number of consecutive dispatch failures
	// that trips the breaker open.
	FailureThreshold uint32 `koanf:"failure_threshold"`
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration `koanf:"cooldown"`
}

// LoggingConfig mirrors internal/logging.Config for layered loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PipelineConfig configures the assembled pipeline itself, independent
// of any one stage.
type PipelineConfig struct {
	// StopTimeout bounds how long Pipeline.Stop waits for a clean drain.
	StopTimeout time.Duration `koanf:"stop_timeout"`
}

// Config aggregates every layer of pipeline configuration.
type Config struct {
	Batching BatchingConfig `koanf:"batching"`
	Sink     SinkConfig     `koanf:"sink"`
	Logging  LoggingConfig  `koanf:"logging"`
	Pipeline PipelineConfig `koanf:"pipeline"`
}

// Default returns the pipeline's built-in configuration defaults, before
// any file or environment overrides are layered on.
func Default() Config {
	return Config{
		Batching: BatchingConfig{
			MaxBatchSize:       50,
			MaxBatchOpen:       30 * time.Second,
			MaxInflightBatches: 1,
			PoolWorkers:        0,
		},
		Sink: SinkConfig{
			CircuitBreakerEnabled: true,
			FailureThreshold:      5,
			Cooldown:              30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			StopTimeout: 10 * time.Second,
		},
	}
}

// Validate reports whether cfg's values are usable to construct a
// pipeline.
func (c Config) Validate() error {
	if c.Batching.MaxBatchSize <= 0 {
		return fmt.Errorf("config: batching.max_batch_size must be positive, got %d", c.Batching.MaxBatchSize)
	}
	if c.Batching.MaxBatchOpen < 0 {
		return fmt.Errorf("config: batching.max_batch_open must not be negative, got %s", c.Batching.MaxBatchOpen)
	}
	if c.Batching.MaxInflightBatches <= 0 {
		return fmt.Errorf("config: batching.max_inflight_batches must be positive, got %d", c.Batching.MaxInflightBatches)
	}
	if c.Pipeline.StopTimeout < 0 {
		return fmt.Errorf("config: pipeline.stop_timeout must not be negative, got %s", c.Pipeline.StopTimeout)
	}
	return nil
}
