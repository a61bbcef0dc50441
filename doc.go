// Package eventpipeline assembles the staged event-processing pipeline
// used to deliver impression and conversion events from many concurrent
// application goroutines to a remote ingestion endpoint.
//
// # Architecture
//
// A Pipeline wires six stages tail-first, each generalizing over the
// caller's item type T down to the canonical internal Event and the
// outbound wire Request:
//
//	┌───────────┐   ┌─────────┐   ┌───────────┐   ┌───────────────────┐   ┌───────┐   ┌──────┐
//	│ Transform │──▶│ Convert │──▶│ Intercept │──▶│  Batching (E)      │──▶│ Merge │──▶│ Sink │
//	│   (T)     │   │ (T→E)   │   │   (E)     │   │  size/time/flush   │   │(E→R)  │   │ (R)  │
//	└───────────┘   └─────────┘   └───────────┘   └───────────────────┘   └───────┘   └──────┘
//
// Start propagates head-to-tail so every downstream stage is ready
// before its predecessor begins emitting; Stop propagates tail-last so a
// stage can drain its own buffered work while its successor is still
// alive to receive it.
//
// The batching stage is the pipeline's core: a mutex/condition-variable
// engine (internal/batching) that coalesces Events by size, by a maximum
// open duration, or on an explicit Flush, while capping how many
// completed batches may be dispatching concurrently.
//
// # What this package does not do
//
// It does not construct or interpret wire payloads, perform network I/O,
// look up experiment/feature configuration, or persist pending events
// across restarts. Those are the caller's responsibility, expressed
// through the Convert function, the merge.Factory, and the sink.EventHandler.
package eventpipeline
