package batching

import (
	"time"

	"github.com/riftflag/eventpipeline/internal/clock"
)

// Config holds the BatchingProcessor's immutable-after-construction
// tuning knobs.
type Config struct {
	// MaxBatchSize is the number of items that closes a batch on the
	// size trigger. Must be positive; 1 disables coalescing entirely,
	// turning every item into its own batch.
	MaxBatchSize int

	// MaxBatchOpen is how long a batch may sit open before the time
	// trigger closes it, measured from the moment the first item lands
	// in an empty batch. Zero disables the time trigger; batches then
	// close only via the size trigger or an explicit Flush.
	MaxBatchOpen time.Duration

	// MaxInflightBatches caps the number of batches submitted to the
	// executor and not yet complete. Must be positive; 1 means batches
	// dispatch strictly one at a time.
	MaxInflightBatches int

	// Executor runs completed batches. Required.
	Executor Executor

	// Clock is the time source for batch age and the time trigger.
	// Defaults to the real wall clock; tests substitute clock.FakeClock.
	Clock clock.Clock
}

// DefaultConfig returns a Config with the batching engine's conventional
// defaults: 50-item batches, a 30-second open window, and strictly serial
// dispatch. Callers override the fields that matter to them.
func DefaultConfig(executor Executor) Config {
	return Config{
		MaxBatchSize:       50,
		MaxBatchOpen:       30 * time.Second,
		MaxInflightBatches: 1,
		Executor:           executor,
		Clock:              clock.Real,
	}
}

// Validate reports whether cfg can be used to construct a Processor,
// filling in the Clock default if it was left nil.
func (c *Config) Validate() error {
	if c.Executor == nil {
		return ErrNilExecutor
	}
	if c.MaxBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxInflightBatches <= 0 {
		return ErrInvalidInflightCap
	}
	if c.MaxBatchOpen < 0 {
		return ErrNegativeBatchOpen
	}
	if c.Clock == nil {
		c.Clock = clock.Real
	}
	return nil
}
