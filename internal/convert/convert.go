// Package convert implements the pipeline's second stage: a one-shot
// mapping from the caller-supplied item type T to the canonical internal
// Event type E.
package convert

import (
	"time"

	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// Func converts a single input item to an Event. A false second return
// value drops the item silently (conversion failure is treated as "not
// an event yet", not a dispatch failure, so no callback fires).
type Func[T, E any] func(item T) (E, bool)

// Stage applies Func to each item and forwards successful conversions
// downstream.
type Stage[T, E any] struct {
	convert    Func[T, E]
	downstream stage.Stage[E]
	sm         stage.StateMachine
}

// New builds a Convert stage wrapping downstream.
func New[T, E any](downstream stage.Stage[E], convert Func[T, E]) *Stage[T, E] {
	return &Stage[T, E]{
		convert:    convert,
		downstream: downstream,
	}
}

// Process converts item and forwards the result downstream, or drops it
// silently if conversion did not produce an Event.
func (s *Stage[T, E]) Process(item T) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("convert: dropped submission after stop")
		return
	}
	if evt, ok := s.convertOne(item); ok {
		s.downstream.Process(evt)
	}
}

// ProcessBatch converts every item and forwards the surviving Events
// downstream as one group, preserving order.
func (s *Stage[T, E]) ProcessBatch(items []T) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("convert: dropped batch submission after stop")
		return
	}
	converted := make([]E, 0, len(items))
	for _, item := range items {
		if evt, ok := s.convertOne(item); ok {
			converted = append(converted, evt)
		}
	}
	if len(converted) > 0 {
		s.downstream.ProcessBatch(converted)
	}
}

func (s *Stage[T, E]) convertOne(item T) (evt E, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("recovered", r).Msg("convert: conversion function panicked, item dropped")
			ok = false
		}
	}()
	return s.convert(item)
}

// Start starts downstream first, then marks this stage RUNNING.
func (s *Stage[T, E]) Start() error {
	if err := s.downstream.Start(); err != nil {
		return err
	}
	s.sm.TransitionToRunning()
	return nil
}

// Stop marks this stage STOPPING then stops downstream last.
func (s *Stage[T, E]) Stop(timeout time.Duration) bool {
	s.sm.BeginStop()
	defer s.sm.FinishStop()
	return s.downstream.Stop(timeout)
}
