package eventpipeline

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/riftflag/eventpipeline/internal/batching"
	"github.com/riftflag/eventpipeline/internal/convert"
	"github.com/riftflag/eventpipeline/internal/events"
	"github.com/riftflag/eventpipeline/internal/intercept"
	"github.com/riftflag/eventpipeline/internal/merge"
	"github.com/riftflag/eventpipeline/internal/sink"
	"github.com/riftflag/eventpipeline/internal/stage"
	"github.com/riftflag/eventpipeline/internal/transform"
)

// Config wires the collaborators the assembled Pipeline needs: the
// caller supplies the domain-specific pieces (how to convert an item,
// how to build a wire Request, where to send it); the pipeline supplies
// the buffering, batching, and lifecycle machinery around them.
type Config[T any] struct {
	// Transformers run, in order, over every item before conversion.
	Transformers []transform.Func[T]

	// Convert maps a caller item to the canonical Event. Required.
	Convert convert.Func[T, events.Event]

	// Interceptors run, in order, over every converted Event.
	Interceptors []intercept.Func[events.Event]

	// Batching tunes the buffering stage. Executor and Clock default to
	// GoroutineExecutor and the real clock if left unset.
	Batching batching.Config

	// EventFactory groups mergeable Events into a wire Request. Required.
	EventFactory merge.Factory

	// Handler performs the actual dispatch. Required.
	Handler sink.EventHandler

	// OnException, if set, receives Requests that failed to dispatch.
	OnException sink.ExceptionHandler

	// Breaker, if set, wraps every sink dispatch.
	Breaker *gobreaker.CircuitBreaker[struct{}]
}

// Pipeline is the assembled, running staged pipeline for item type T.
type Pipeline[T any] struct {
	head      stage.Stage[T]
	batchProc *batching.Processor[events.Event]
}

// New validates cfg and wires the six stages tail-first: Sink, Merge,
// Batching, Intercept, Convert, Transform.
func New[T any](cfg Config[T]) (*Pipeline[T], error) {
	if cfg.Handler == nil {
		return nil, ErrNilEventHandler
	}
	if cfg.Convert == nil {
		return nil, ErrNilConvertFunc
	}
	if cfg.EventFactory == nil {
		return nil, ErrNilEventFactory
	}

	sinkStage := sink.New(sink.Config{
		Handler:     cfg.Handler,
		OnException: cfg.OnException,
		Breaker:     cfg.Breaker,
	})

	mergeStage := merge.New(sinkStage, cfg.EventFactory)

	batchCfg := cfg.Batching
	if batchCfg.Executor == nil {
		batchCfg.Executor = batching.GoroutineExecutor{}
	}
	batchProc, err := batching.New[events.Event](mergeStage, batchCfg)
	if err != nil {
		return nil, err
	}

	interceptStage := intercept.New[events.Event](batchProc, cfg.Interceptors...)
	convertStage := convert.New[T, events.Event](interceptStage, cfg.Convert)
	transformStage := transform.New[T](convertStage, cfg.Transformers...)

	return &Pipeline[T]{head: transformStage, batchProc: batchProc}, nil
}

// Process submits a single item. Non-blocking in the fast path; blocks
// only if the batching stage is saturated at its inflight cap. Never
// panics on valid input; silently drops after Stop.
func (p *Pipeline[T]) Process(item T) {
	p.head.Process(item)
}

// ProcessBatch submits an ordered group of items with the same semantics
// as Process.
func (p *Pipeline[T]) ProcessBatch(items []T) {
	p.head.ProcessBatch(items)
}

// Flush forces the batching stage's currently open batch closed and
// handed off to its executor. Idempotent.
func (p *Pipeline[T]) Flush() {
	p.batchProc.Flush()
}

// Start starts every stage, tail-first, so each stage's downstream is
// ready before it begins emitting.
func (p *Pipeline[T]) Start() error {
	return p.head.Start()
}

// Stop stops every stage, head-first for the STOPPING transition and
// tail-last for the actual drain, returning true iff every stage drained
// within timeout.
func (p *Pipeline[T]) Stop(timeout time.Duration) bool {
	return p.head.Stop(timeout)
}
