package eventpipeline

import "errors"

var (
	// ErrNilEventHandler is returned by New when Config.Handler is nil.
	ErrNilEventHandler = errors.New("eventpipeline: handler must not be nil")

	// ErrNilConvertFunc is returned by New when Config.Convert is nil.
	ErrNilConvertFunc = errors.New("eventpipeline: convert function must not be nil")

	// ErrNilEventFactory is returned by New when Config.EventFactory is nil.
	ErrNilEventFactory = errors.New("eventpipeline: event factory must not be nil")
)
