package batching

import "errors"

var (
	// ErrNilExecutor is returned by Validate when no Executor is configured.
	ErrNilExecutor = errors.New("batching: executor must not be nil")

	// ErrInvalidBatchSize is returned by Validate when MaxBatchSize is not
	// a positive integer.
	ErrInvalidBatchSize = errors.New("batching: max batch size must be positive")

	// ErrInvalidInflightCap is returned by Validate when
	// MaxInflightBatches is not a positive integer.
	ErrInvalidInflightCap = errors.New("batching: max inflight batches must be positive")

	// ErrNegativeBatchOpen is returned by Validate when MaxBatchOpen is
	// negative. Zero is valid and disables the time trigger.
	ErrNegativeBatchOpen = errors.New("batching: max batch open duration must not be negative")
)
