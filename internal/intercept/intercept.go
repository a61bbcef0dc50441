// Package intercept implements the pipeline's third stage: an ordered
// list of predicates/mutators over the canonical Event type. Any
// interceptor that signals "drop" short-circuits the item.
package intercept

import (
	"time"

	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// Func inspects or mutates an Event. Returning ok=false drops the item
// with no callback fired (interceptors are policy filters, not dispatch
// failures). A returned Event replaces the one passed to later
// interceptors and, if it survives, to downstream.
type Func[E any] func(evt E) (E, bool)

// Stage runs its ordered Funcs over each Event, dropping it as soon as
// any interceptor says so.
type Stage[E any] struct {
	fns        []Func[E]
	downstream stage.Stage[E]
	sm         stage.StateMachine
}

// New builds an Intercept stage wrapping downstream.
func New[E any](downstream stage.Stage[E], fns ...Func[E]) *Stage[E] {
	return &Stage[E]{
		fns:        fns,
		downstream: downstream,
	}
}

// Process runs evt through every interceptor and forwards it downstream
// if none dropped it.
func (s *Stage[E]) Process(evt E) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("intercept: dropped submission after stop")
		return
	}
	if out, keep := s.runAll(evt); keep {
		s.downstream.Process(out)
	}
}

// ProcessBatch runs every item through the interceptor chain and forwards
// the surviving Events as one group, preserving order.
func (s *Stage[E]) ProcessBatch(items []E) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("intercept: dropped batch submission after stop")
		return
	}
	kept := make([]E, 0, len(items))
	for _, item := range items {
		if out, keep := s.runAll(item); keep {
			kept = append(kept, out)
		}
	}
	if len(kept) > 0 {
		s.downstream.ProcessBatch(kept)
	}
}

func (s *Stage[E]) runAll(evt E) (out E, keep bool) {
	out = evt
	for _, fn := range s.fns {
		var ok bool
		out, ok = s.runOne(fn, out)
		if !ok {
			return out, false
		}
	}
	return out, true
}

func (s *Stage[E]) runOne(fn Func[E], evt E) (out E, keep bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("recovered", r).Msg("intercept: interceptor panicked, item dropped")
			keep = false
		}
	}()
	return fn(evt)
}

// Start starts downstream first, then marks this stage RUNNING.
func (s *Stage[E]) Start() error {
	if err := s.downstream.Start(); err != nil {
		return err
	}
	s.sm.TransitionToRunning()
	return nil
}

// Stop marks this stage STOPPING then stops downstream last.
func (s *Stage[E]) Stop(timeout time.Duration) bool {
	s.sm.BeginStop()
	defer s.sm.FinishStop()
	return s.downstream.Stop(timeout)
}
