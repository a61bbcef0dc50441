// Package transform implements the pipeline's first stage: apply N
// ordered side-effect functions to each item, then forward the item
// unchanged.
package transform

import (
	"time"

	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// Func is a side-effecting transformer. It may annotate shared mutable
// state reachable from item but must not replace it. The item always
// flows downstream regardless of what a transformer does.
type Func[T any] func(item T)

// Stage applies its ordered Funcs to each item, in order, then forwards
// the item to downstream unchanged. A Func that panics is logged at warn
// and does not affect the item or later Funcs.
type Stage[T any] struct {
	fns        []Func[T]
	downstream stage.Stage[T]
	sm         stage.StateMachine
}

// New builds a Transform stage wrapping downstream. fns run in the order
// given for every item.
func New[T any](downstream stage.Stage[T], fns ...Func[T]) *Stage[T] {
	return &Stage[T]{
		fns:        fns,
		downstream: downstream,
	}
}

// Process applies every transformer to item, then forwards it downstream.
func (s *Stage[T]) Process(item T) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("transform: dropped submission after stop")
		return
	}
	s.applyAll(item)
	s.downstream.Process(item)
}

// ProcessBatch applies every transformer to each item in items, in order,
// then forwards the whole group downstream in one ProcessBatch call,
// preserving order.
func (s *Stage[T]) ProcessBatch(items []T) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("transform: dropped batch submission after stop")
		return
	}
	stage.Iterate(items, s.applyAll)
	s.downstream.ProcessBatch(items)
}

func (s *Stage[T]) applyAll(item T) {
	for _, fn := range s.fns {
		s.runOne(fn, item)
	}
}

func (s *Stage[T]) runOne(fn Func[T], item T) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("recovered", r).Msg("transform: side-effect function panicked, item unaffected")
		}
	}()
	fn(item)
}

// Start starts downstream first, then marks this stage RUNNING, per the
// stage lifecycle contract.
func (s *Stage[T]) Start() error {
	if err := s.downstream.Start(); err != nil {
		return err
	}
	s.sm.TransitionToRunning()
	return nil
}

// Stop marks this stage STOPPING, then stops downstream last so downstream
// remains available while this stage has nothing further to drain (a
// Transform stage holds no buffered state of its own).
func (s *Stage[T]) Stop(timeout time.Duration) bool {
	s.sm.BeginStop()
	defer s.sm.FinishStop()
	return s.downstream.Stop(timeout)
}
