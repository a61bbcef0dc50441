// Package clock abstracts time so the batching engine's timer logic can be
// driven deterministically in tests instead of by wall-clock sleeps.
package clock

import "github.com/zoobzio/clockz"

// Clock provides time operations for deterministic testing.
type Clock = clockz.Clock

// Timer represents a single scheduled event.
type Timer = clockz.Timer

// Ticker delivers ticks at intervals.
type Ticker = clockz.Ticker

// Real is the default Clock backed by the standard library.
var Real Clock = clockz.RealClock
