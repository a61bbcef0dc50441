// Package stage defines the shared contract every pipeline stage
// implements: single-item and bulk submission plus a cooperative
// start/stop lifecycle. Stages are wired tail-first, so a stage never
// knows more than the shape of its immediate downstream.
package stage

import "time"

// Lifecycle is the start/stop contract shared by every stage.
//
// Start recurses to the downstream stage first, so a stage can rely on its
// successor already being ready by the time it begins emitting. Stop
// recurses to the downstream stage last, so a stage can drain its own
// state while its successor is still alive to receive it.
type Lifecycle interface {
	// Start transitions the stage from NEW to RUNNING. Calling Start more
	// than once is a no-op after the first successful call.
	Start() error

	// Stop transitions the stage to STOPPING, drains any buffered work,
	// then to STOPPED. It returns true iff the drain completed within
	// timeout. Stop never panics and never blocks past timeout.
	Stop(timeout time.Duration) bool
}

// Stage is the full contract for a pipeline stage that accepts items of
// type T.
type Stage[T any] interface {
	// Process submits a single item. It must not panic; failures are
	// logged and the item is dropped per the stage's error policy.
	Process(item T)

	// ProcessBatch submits an ordered group of items. The default
	// behavior (see Iterate) is to call Process once per item; a stage
	// that can do better overrides it.
	ProcessBatch(items []T)

	Lifecycle
}

// BatchConsumer is the narrower contract a stage needs of its downstream
// when it only ever hands off pre-formed groups (the batching engine's
// view of the merge stage, for instance).
type BatchConsumer[T any] interface {
	ProcessBatch(items []T)
	Lifecycle
}

// Iterate implements the default ProcessBatch behavior described in the
// stage contract: call Process once per item, in order.
func Iterate[T any](items []T, process func(T)) {
	for _, item := range items {
		process(item)
	}
}
