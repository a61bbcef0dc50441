// Package batching implements the pipeline's buffering stage: a
// mutex/condition-variable batching engine that coalesces individual
// Events into groups by size, by a maximum open duration, or on demand,
// while capping how many groups may be in flight on the executor at
// once. This is the pipeline's central subsystem: every other stage is
// a straightforward map/filter; this one owns real concurrent state.
package batching

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/riftflag/eventpipeline/internal/clock"
	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/metrics"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// Stats is a point-in-time snapshot of a Processor's counters.
type Stats struct {
	Received    int64
	Flushed     int64
	FlushCount  int64
	ErrorCount  int64
	LastFlushAt time.Time
}

// Processor batches items of type E and hands completed groups to a
// downstream BatchConsumer. The zero value is not usable; construct with
// New.
//
// Batching protocol: the openBatch/openedAt/timer triple describes the
// batch currently accepting items. Every mutation of that triple happens
// under mu. Closing a batch (by size, by timer, or by Flush) detaches it
// into a local slice, resets the triple, and only then gates on
// inflight and hands off to the executor, so the lock is never held
// across a dispatch.
type Processor[E any] struct {
	cfg        Config
	downstream stage.BatchConsumer[E]

	mu        sync.Mutex
	notFull   *sync.Cond
	openBatch []E
	openedAt  time.Time
	timer     clock.Timer
	batchGen  int64
	inflight  int

	sm stage.StateMachine

	received    atomic.Int64
	flushed     atomic.Int64
	flushCount  atomic.Int64
	errorCount  atomic.Int64
	lastFlushAt atomic.Value // time.Time
}

// New constructs a Processor from cfg, wrapping downstream. It returns an
// error if cfg fails validation.
func New[E any](downstream stage.BatchConsumer[E], cfg Config) (*Processor[E], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Processor[E]{
		cfg:        cfg,
		downstream: downstream,
		openBatch:  make([]E, 0, cfg.MaxBatchSize),
	}
	p.notFull = sync.NewCond(&p.mu)
	return p, nil
}

// Process appends item to the open batch, closing and dispatching it if
// the append reaches MaxBatchSize.
func (p *Processor[E]) Process(item E) {
	if !p.sm.IsRunning() {
		logging.Debug().Msg("batching: dropped submission, processor not running")
		metrics.RecordDrop("batching", "not_running")
		return
	}

	p.mu.Lock()
	p.received.Add(1)
	metrics.RecordReceived(1)
	p.openBatch = append(p.openBatch, item)
	if len(p.openBatch) == 1 && p.cfg.MaxBatchOpen > 0 {
		p.openedAt = p.cfg.Clock.Now()
		p.armTimerLocked()
	}
	if len(p.openBatch) < p.cfg.MaxBatchSize {
		p.mu.Unlock()
		return
	}
	ready, age := p.closeOpenBatchLocked()
	p.dispatchLocked(ready, age)
}

// ProcessBatch accepts an ordered group of items in one call. Each step
// either dispatches a full-size chunk directly (when the open batch is
// empty and enough items remain) or tops up the open batch and closes it
// once it reaches the cap, re-checking the open batch's live length under
// the lock on every step. dispatchLocked releases mu while a dispatch
// blocks on the inflight gate, so a concurrent Process call can grow the
// open batch in between steps; re-checking rather than assuming the open
// batch's size is what keeps every emitted batch within MaxBatchSize
// under that interleaving.
func (p *Processor[E]) ProcessBatch(items []E) {
	if !p.sm.IsRunning() {
		logging.Debug().Msg("batching: dropped batch submission, processor not running")
		metrics.RecordDrop("batching", "not_running")
		return
	}
	if len(items) == 0 {
		return
	}

	p.mu.Lock()
	p.received.Add(int64(len(items)))
	metrics.RecordReceived(len(items))

	idx := 0
	for idx < len(items) {
		remaining := items[idx:]

		if len(p.openBatch) == 0 && len(remaining) >= p.cfg.MaxBatchSize {
			chunk := remaining[:p.cfg.MaxBatchSize]
			idx += p.cfg.MaxBatchSize
			p.dispatchLocked(chunk, 0)
			p.mu.Lock()
			continue
		}

		room := p.cfg.MaxBatchSize - len(p.openBatch)
		n := room
		if n > len(remaining) {
			n = len(remaining)
		}
		wasEmpty := len(p.openBatch) == 0
		p.openBatch = append(p.openBatch, remaining[:n]...)
		idx += n
		if wasEmpty && p.cfg.MaxBatchOpen > 0 {
			p.openedAt = p.cfg.Clock.Now()
			p.armTimerLocked()
		}
		if len(p.openBatch) >= p.cfg.MaxBatchSize {
			ready, age := p.closeOpenBatchLocked()
			p.dispatchLocked(ready, age)
			p.mu.Lock()
		}
	}
	p.mu.Unlock()
}

// Flush closes and dispatches the currently open batch, if any. Repeated
// calls with no intervening submissions are no-ops.
func (p *Processor[E]) Flush() {
	p.mu.Lock()
	if len(p.openBatch) == 0 {
		p.mu.Unlock()
		return
	}
	ready, age := p.closeOpenBatchLocked()
	p.dispatchLocked(ready, age)
}

// Stats returns a snapshot of the processor's running counters.
func (p *Processor[E]) Stats() Stats {
	stats := Stats{
		Received:   p.received.Load(),
		Flushed:    p.flushed.Load(),
		FlushCount: p.flushCount.Load(),
		ErrorCount: p.errorCount.Load(),
	}
	if t, ok := p.lastFlushAt.Load().(time.Time); ok {
		stats.LastFlushAt = t
	}
	return stats
}

// closeOpenBatchLocked detaches the current open batch, cancels its
// timer, and reports its age. Must be called with p.mu held; leaves it
// held on return.
func (p *Processor[E]) closeOpenBatchLocked() (ready []E, age time.Duration) {
	ready = p.openBatch
	p.openBatch = make([]E, 0, p.cfg.MaxBatchSize)
	p.batchGen++
	p.cancelTimerLocked()
	if !p.openedAt.IsZero() {
		age = p.cfg.Clock.Now().Sub(p.openedAt)
		p.openedAt = time.Time{}
	}
	return ready, age
}

// dispatchLocked gates on the inflight cap and submits ready to the
// executor. Must be called with p.mu held; always returns with it
// released.
func (p *Processor[E]) dispatchLocked(ready []E, age time.Duration) {
	for p.inflight >= p.cfg.MaxInflightBatches {
		p.notFull.Wait()
	}
	p.inflight++
	metrics.InflightBatches.Set(float64(p.inflight))
	p.mu.Unlock()

	metrics.RecordBatchFlush(len(ready), age)
	p.submit(ready)
}

// submit hands ready to the executor, wrapped so the inflight slot is
// always released and the dispatch is timed regardless of outcome.
func (p *Processor[E]) submit(ready []E) {
	p.cfg.Executor.Submit(func() {
		defer p.release()
		p.dispatchToDownstream(ready)
	})
}

func (p *Processor[E]) dispatchToDownstream(ready []E) {
	batchID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("recovered", r).Str("batch_id", batchID).Int("batch_size", len(ready)).
				Msg("batching: downstream sink panicked during dispatch")
			metrics.RecordDispatchFailure("panic")
			p.errorCount.Add(1)
		}
	}()

	logging.Trace().Str("batch_id", batchID).Int("batch_size", len(ready)).Msg("batching: dispatching batch")
	start := p.cfg.Clock.Now()
	p.downstream.ProcessBatch(ready)
	finished := p.cfg.Clock.Now()
	metrics.RecordDispatchDuration(finished.Sub(start))

	p.flushed.Add(int64(len(ready)))
	p.flushCount.Add(1)
	p.lastFlushAt.Store(finished)
}

func (p *Processor[E]) release() {
	p.mu.Lock()
	p.inflight--
	metrics.InflightBatches.Set(float64(p.inflight))
	p.mu.Unlock()
	p.notFull.Broadcast()
}

// armTimerLocked arms a timer for the batch currently open, tagged with
// the current generation so a stale fire (raced by a concurrent size
// close or Flush) recognizes it no longer owns the batch it fires into.
// Must be called with p.mu held.
func (p *Processor[E]) armTimerLocked() {
	gen := p.batchGen
	p.timer = p.cfg.Clock.AfterFunc(p.cfg.MaxBatchOpen, func() { p.onTimerFire(gen) })
}

// cancelTimerLocked stops and clears the armed timer, if any. Must be
// called with p.mu held.
func (p *Processor[E]) cancelTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// onTimerFire runs on its own goroutine when a batch's open window
// elapses. If the batch it was armed for has already been closed by a
// size trigger or a Flush (visible either as a generation mismatch or
// an empty openBatch), it no-ops.
func (p *Processor[E]) onTimerFire(gen int64) {
	p.mu.Lock()
	if gen != p.batchGen || len(p.openBatch) == 0 {
		p.mu.Unlock()
		return
	}
	ready, age := p.closeOpenBatchLocked()
	p.dispatchLocked(ready, age)
}

// Start marks the processor RUNNING after starting its downstream.
func (p *Processor[E]) Start() error {
	if err := p.downstream.Start(); err != nil {
		return err
	}
	p.sm.TransitionToRunning()
	return nil
}

// Stop refuses further submissions, flushes any open batch, and waits up
// to timeout for inflight dispatches to complete before stopping
// downstream. It returns true iff the local drain and the downstream
// stop both completed within timeout.
func (p *Processor[E]) Stop(timeout time.Duration) bool {
	localOK := true
	if p.sm.BeginStop() {
		p.Flush()
		localOK = p.waitForDrain(timeout)
		p.sm.FinishStop()
	}
	downstreamOK := p.downstream.Stop(timeout)
	return localOK && downstreamOK
}

func (p *Processor[E]) waitForDrain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.inflight > 0 {
			p.notFull.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-p.cfg.Clock.After(timeout):
		return false
	}
}
