// Package merge implements the pipeline's fifth stage: it groups
// consecutive mergeable Events within a batch and hands each group to an
// injected factory that produces the outbound wire Request, carrying the
// group's aggregated callback list along with it.
package merge

import (
	"time"

	"github.com/google/uuid"

	"github.com/riftflag/eventpipeline/internal/events"
	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/metrics"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// Factory builds a Request from a group of mergeable Events. A false
// second return drops the group silently, since the caller-supplied
// factory, not the merge stage, decides whether a group is dispatchable.
type Factory func(group []events.Event) (events.Request, bool)

// Stage groups consecutive mergeable Events in each incoming batch and
// forwards one Request per surviving group.
type Stage struct {
	factory    Factory
	downstream stage.BatchConsumer[events.Request]
	sm         stage.StateMachine
}

// New builds a Merge stage wrapping downstream.
func New(downstream stage.BatchConsumer[events.Request], factory Factory) *Stage {
	return &Stage{factory: factory, downstream: downstream}
}

// ProcessBatch groups batch into consecutive mergeable runs, converts
// each surviving run to a Request via the factory, and forwards the
// resulting Requests downstream as one group.
func (s *Stage) ProcessBatch(batch []events.Event) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("merge: dropped batch submission, stage not running")
		metrics.RecordDrop("merge", "not_running")
		return
	}
	if len(batch) == 0 {
		return
	}

	requests := make([]events.Request, 0, len(batch))
	for _, group := range groupMergeable(batch) {
		req, ok := s.buildOne(group)
		if !ok {
			metrics.RecordDrop("merge", "factory_declined")
			continue
		}
		requests = append(requests, req)
	}
	if len(requests) > 0 {
		s.downstream.ProcessBatch(requests)
	}
}

// groupMergeable partitions batch into maximal runs of consecutive
// mergeable Events, preserving order.
func groupMergeable(batch []events.Event) [][]events.Event {
	groups := make([][]events.Event, 0, len(batch))
	start := 0
	for i := 1; i <= len(batch); i++ {
		if i == len(batch) || !batch[start].Mergeable(batch[i]) {
			groups = append(groups, batch[start:i])
			start = i
		}
	}
	return groups
}

func (s *Stage) buildOne(group []events.Event) (req events.Request, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("recovered", r).Int("group_size", len(group)).
				Msg("merge: event factory panicked, group dropped")
			ok = false
		}
	}()

	req, ok = s.factory(group)
	if !ok {
		return events.Request{}, false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var callbacks events.CallbackList
	for _, evt := range group {
		callbacks.Add(evt, evt.Callback)
	}
	callbacks.Merge(req.Callback)
	req.Callback = callbacks
	if len(req.Events) == 0 {
		req.Events = group
	}
	return req, true
}

// Start starts downstream first, then marks this stage RUNNING.
func (s *Stage) Start() error {
	if err := s.downstream.Start(); err != nil {
		return err
	}
	s.sm.TransitionToRunning()
	return nil
}

// Stop marks this stage STOPPING then stops downstream last.
func (s *Stage) Stop(timeout time.Duration) bool {
	s.sm.BeginStop()
	defer s.sm.FinishStop()
	return s.downstream.Stop(timeout)
}
