package clock

import (
	"context"
	"sync"
	"time"
)

// FakeClock implements Clock for deterministic tests: time only advances
// when Step or SetTime is called, never on its own.
//
// Adapted from zoobzio/streamz's test-local FakeClock (clock_fake_test.go):
// same waiter/mutex/waitgroup shape, promoted here to a non-test helper so
// internal/batching's timer logic can be driven from outside package
// streamz. The time field is renamed to now, HasWaiters was dropped as
// unused, and setTimeLocked copies each AfterFunc callback into a
// per-iteration variable before starting its goroutine.
type FakeClock struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	targetTime time.Time
	destChan   chan time.Time
	afterFunc  func()
	period     time.Duration
	active     bool
}

// NewFakeClock creates a FakeClock set to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake clock's current time.
func (f *FakeClock) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// After returns a channel that receives the time once d has elapsed.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, &waiter{
		targetTime: f.now.Add(d),
		destChan:   ch,
		active:     true,
	})
	return ch
}

// AfterFunc schedules fn to run in its own goroutine once d has elapsed.
func (f *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &waiter{
		targetTime: f.now.Add(d),
		afterFunc:  fn,
		active:     true,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTimer{clock: f, waiter: w}
}

// NewTimer creates a Timer that fires once after d.
func (f *FakeClock) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{
		targetTime: f.now.Add(d),
		destChan:   ch,
		active:     true,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTimer{clock: f, waiter: w}
}

// NewTicker creates a Ticker that fires every d.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{
		targetTime: f.now.Add(d),
		destChan:   ch,
		period:     d,
		active:     true,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTicker{clock: f, waiter: w}
}

// Step advances the fake clock by d, firing any waiters whose deadline has
// passed.
func (f *FakeClock) Step(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setTimeLocked(f.now.Add(d))
}

// SetTime moves the fake clock to t. t must not be before the current time.
func (f *FakeClock) SetTime(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setTimeLocked(t)
}

// BlockUntilReady waits for all AfterFunc callbacks triggered so far to
// finish running.
func (f *FakeClock) BlockUntilReady() {
	f.wg.Wait()
}

// Sleep blocks until d has elapsed on the fake clock.
func (f *FakeClock) Sleep(d time.Duration) {
	<-f.After(d)
}

// Since returns the fake clock's elapsed time since t.
func (f *FakeClock) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// WithTimeout returns a context that is cancelled once timeout has
// elapsed on the fake clock.
func (f *FakeClock) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	timer := f.AfterFunc(timeout, cancel)
	return ctx, func() {
		timer.Stop()
		cancel()
	}
}

// WithDeadline returns a context that is cancelled once the fake clock
// reaches deadline.
func (f *FakeClock) WithDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return f.WithTimeout(ctx, deadline.Sub(f.Now()))
}

func (f *FakeClock) setTimeLocked(t time.Time) {
	if t.Before(f.now) {
		panic("clock: fake clock cannot move backwards")
	}
	f.now = t

	remaining := make([]*waiter, 0, len(f.waiters))
	for _, w := range f.waiters {
		if !w.active {
			continue
		}
		if w.targetTime.After(t) {
			remaining = append(remaining, w)
			continue
		}

		if w.destChan != nil {
			select {
			case w.destChan <- t:
			default:
			}
		}
		if w.afterFunc != nil {
			f.wg.Add(1)
			fn := w.afterFunc
			go func() {
				defer f.wg.Done()
				fn()
			}()
		}
		if w.period > 0 {
			w.targetTime = w.targetTime.Add(w.period)
			for !w.targetTime.After(t) {
				select {
				case w.destChan <- w.targetTime:
				default:
				}
				w.targetTime = w.targetTime.Add(w.period)
			}
			remaining = append(remaining, w)
		} else {
			w.active = false
		}
	}
	f.waiters = remaining
}

type fakeTimer struct {
	clock  *FakeClock
	waiter *waiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := t.waiter.active
	t.waiter.active = false
	return active
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := t.waiter.active
	t.waiter.active = true
	t.waiter.targetTime = t.clock.now.Add(d)
	return active
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.waiter.destChan
}

type fakeTicker struct {
	clock  *FakeClock
	waiter *waiter
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.waiter.active = false
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.waiter.destChan
}
