package events

// Request (R) is the fully-prepared wire artifact the merge stage produces
// from one or more mergeable Events. The core never constructs or
// interprets Body/Headers itself (those come from the injected
// EventFactory); it only guarantees exactly one dispatch call per Request.
type Request struct {
	ID       string
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Events   []Event
	Callback CallbackList
}
