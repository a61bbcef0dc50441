// Package sink implements the pipeline's terminal stage: it hands each
// merged Request to the external event handler, optionally behind a
// circuit breaker, and routes the outcome to that Request's aggregated
// callbacks.
package sink

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/riftflag/eventpipeline/internal/events"
	"github.com/riftflag/eventpipeline/internal/logging"
	"github.com/riftflag/eventpipeline/internal/metrics"
	"github.com/riftflag/eventpipeline/internal/stage"
)

// EventHandler is the external collaborator that performs the actual
// dispatch (HTTP, or anything else); the pipeline treats it as opaque
// beyond its error return.
type EventHandler interface {
	Dispatch(req events.Request) error
}

// ExceptionHandler receives a Request that failed to dispatch, alongside
// the error. If unset, dispatch failures are logged and swallowed.
type ExceptionHandler func(req events.Request, err error)

// Config configures a sink Stage.
type Config struct {
	// Handler is required.
	Handler EventHandler

	// OnException is optional; nil means log-and-swallow.
	OnException ExceptionHandler

	// Breaker, if set, wraps every dispatch. Nil disables circuit
	// breaking entirely.
	Breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker builds a gobreaker.CircuitBreaker suitable for use as a
// sink's Breaker: it opens after failureThreshold consecutive dispatch
// failures and probes again after cooldown.
func NewBreaker(name string, failureThreshold uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("sink: circuit breaker state changed")
			metrics.CircuitBreakerState.Set(float64(to))
		},
	})
}

// Stage is the pipeline's tail: it has no downstream of its own.
type Stage struct {
	cfg Config
	sm  stage.StateMachine
}

// New builds a Sink stage from cfg.
func New(cfg Config) *Stage {
	return &Stage{cfg: cfg}
}

// Process dispatches a single Request.
func (s *Stage) Process(req events.Request) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("sink: dropped submission, stage not running")
		metrics.RecordDrop("sink", "not_running")
		return
	}
	s.dispatchOne(req)
}

// ProcessBatch dispatches every Request in items, independently: one
// Request's failure does not affect the others.
func (s *Stage) ProcessBatch(items []events.Request) {
	if !s.sm.IsRunning() {
		logging.Debug().Msg("sink: dropped batch submission, stage not running")
		metrics.RecordDrop("sink", "not_running")
		return
	}
	for _, req := range items {
		s.dispatchOne(req)
	}
}

func (s *Stage) dispatchOne(req events.Request) {
	err := s.execute(req)
	if err != nil {
		logging.Warn().Err(err).Str("request_id", req.ID).Msg("sink: dispatch failed")
		metrics.RecordDispatchFailure(categorize(err))
		if s.cfg.OnException != nil {
			invokeExceptionHandler(s.cfg.OnException, req, err)
		}
		req.Callback.FireFailure(err, logPanic)
		return
	}
	req.Callback.FireSuccess(logPanic)
}

func (s *Stage) execute(req events.Request) error {
	dispatch := func() (struct{}, error) {
		return struct{}{}, s.callHandler(req)
	}
	if s.cfg.Breaker == nil {
		_, err := dispatch()
		return err
	}
	_, err := s.cfg.Breaker.Execute(dispatch)
	return err
}

// callHandler invokes the external handler with panic isolation. A
// misbehaving handler must not take the pipeline down with it.
func (s *Stage) callHandler(req events.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{recovered: r}
		}
	}()
	return s.cfg.Handler.Dispatch(req)
}

func invokeExceptionHandler(h ExceptionHandler, req events.Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("recovered", r).Msg("sink: exception handler panicked")
		}
	}()
	h(req, err)
}

func logPanic(recovered any) {
	logging.Warn().Interface("recovered", recovered).Msg("sink: callback panicked")
}

type panicError struct {
	recovered any
}

func (e *panicError) Error() string {
	return "sink: handler panicked"
}

func categorize(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return "handler_panic"
	}
	return "handler_error"
}

// Start marks the sink RUNNING. It has no downstream to recurse into.
func (s *Stage) Start() error {
	s.sm.TransitionToRunning()
	return nil
}

// Stop marks the sink STOPPED. It has no downstream to recurse into and
// nothing of its own to drain: dispatch is synchronous within
// ProcessBatch, so by the time Stop is called no dispatch for this stage
// is still pending.
func (s *Stage) Stop(timeout time.Duration) bool {
	s.sm.BeginStop()
	s.sm.FinishStop()
	return true
}
