package events

// Callback is a success/failure handler pair registered against one
// Event. Either field may be nil.
type Callback struct {
	OnSuccess func(Event)
	OnFailure func(Event, error)
}

type callbackEntry struct {
	event    Event
	callback Callback
}

// CallbackList is an ordered, failure-isolated aggregate of Callbacks,
// each tied to the Event it was registered against. A single callback
// panicking must not prevent the remaining callbacks from running and
// must not fail the dispatch that triggered them.
type CallbackList struct {
	entries []callbackEntry
}

// Add appends evt's callback to the end of the list, preserving
// registration order.
func (l *CallbackList) Add(evt Event, cb Callback) {
	l.entries = append(l.entries, callbackEntry{event: evt, callback: cb})
}

// Merge appends every entry of other to l, preserving relative order.
// Used when combining the callback lists of events grouped into one
// Request.
func (l *CallbackList) Merge(other CallbackList) {
	l.entries = append(l.entries, other.entries...)
}

// Len reports how many callbacks are registered.
func (l CallbackList) Len() int {
	return len(l.entries)
}

// FireSuccess invokes OnSuccess on every registered callback, in
// registration order, passing back each callback's own originating
// Event. Panics are isolated so one faulty callback does not block the
// rest.
func (l CallbackList) FireSuccess(onPanic func(recovered any)) {
	for _, e := range l.entries {
		if e.callback.OnSuccess == nil {
			continue
		}
		invokeIsolated(func() { e.callback.OnSuccess(e.event) }, onPanic)
	}
}

// FireFailure invokes OnFailure on every registered callback, in
// registration order, passing back each callback's own originating Event
// alongside err. Panics are isolated so one faulty callback does not
// block the rest.
func (l CallbackList) FireFailure(err error, onPanic func(recovered any)) {
	for _, e := range l.entries {
		if e.callback.OnFailure == nil {
			continue
		}
		invokeIsolated(func() { e.callback.OnFailure(e.event, err) }, onPanic)
	}
}

func invokeIsolated(fn func(), onPanic func(recovered any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn()
}
