package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/riftflag/eventpipeline/internal/events"
)

type recordingHandler struct {
	requests []events.Request
	fail     error
	panicOn  func(events.Request) bool
}

func (h *recordingHandler) Dispatch(req events.Request) error {
	if h.panicOn != nil && h.panicOn(req) {
		panic("handler exploded")
	}
	h.requests = append(h.requests, req)
	return h.fail
}

func TestSuccessfulDispatchFiresOnSuccess(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Handler: handler})
	_ = s.Start()

	var succeeded []string
	req := events.Request{ID: "r1"}
	req.Callback.Add(events.Event{ID: "e1"}, events.Callback{
		OnSuccess: func(evt events.Event) { succeeded = append(succeeded, evt.ID) },
	})

	s.Process(req)

	if len(handler.requests) != 1 {
		t.Fatalf("handler received %d requests, want 1", len(handler.requests))
	}
	if len(succeeded) != 1 || succeeded[0] != "e1" {
		t.Fatalf("succeeded = %v, want [e1]", succeeded)
	}
}

func TestFailedDispatchFiresOnFailure(t *testing.T) {
	wantErr := errors.New("network down")
	handler := &recordingHandler{fail: wantErr}
	s := New(Config{Handler: handler})
	_ = s.Start()

	var failedWith error
	req := events.Request{ID: "r1"}
	req.Callback.Add(events.Event{ID: "e1"}, events.Callback{
		OnFailure: func(evt events.Event, err error) { failedWith = err },
	})

	s.Process(req)

	if !errors.Is(failedWith, wantErr) {
		t.Fatalf("failedWith = %v, want %v", failedWith, wantErr)
	}
}

func TestExceptionHandlerReceivesFailedRequest(t *testing.T) {
	wantErr := errors.New("boom")
	handler := &recordingHandler{fail: wantErr}
	var seen events.Request
	var seenErr error
	s := New(Config{
		Handler: handler,
		OnException: func(req events.Request, err error) {
			seen = req
			seenErr = err
		},
	})
	_ = s.Start()

	s.Process(events.Request{ID: "r1"})

	if seen.ID != "r1" || !errors.Is(seenErr, wantErr) {
		t.Fatalf("exception handler saw (%v, %v), want (r1, %v)", seen, seenErr, wantErr)
	}
}

func TestHandlerPanicIsIsolatedAndReportedAsFailure(t *testing.T) {
	handler := &recordingHandler{panicOn: func(events.Request) bool { return true }}
	var failed bool
	s := New(Config{Handler: handler})
	_ = s.Start()

	req := events.Request{ID: "r1"}
	req.Callback.Add(events.Event{ID: "e1"}, events.Callback{
		OnFailure: func(events.Event, error) { failed = true },
	})

	s.Process(req)

	if !failed {
		t.Fatal("expected onFailure to fire after handler panic")
	}
}

func TestProcessBatchIsolatesFailuresBetweenRequests(t *testing.T) {
	handler := &recordingHandler{panicOn: func(req events.Request) bool { return req.ID == "bad" }}
	s := New(Config{Handler: handler})
	_ = s.Start()

	var succeeded []string
	cb := func(id string) events.Callback {
		return events.Callback{OnSuccess: func(evt events.Event) { succeeded = append(succeeded, id) }}
	}
	good1 := events.Request{ID: "good1"}
	good1.Callback.Add(events.Event{}, cb("good1"))
	bad := events.Request{ID: "bad"}
	good2 := events.Request{ID: "good2"}
	good2.Callback.Add(events.Event{}, cb("good2"))

	s.ProcessBatch([]events.Request{good1, bad, good2})

	if len(succeeded) != 2 || succeeded[0] != "good1" || succeeded[1] != "good2" {
		t.Fatalf("succeeded = %v, want [good1 good2]", succeeded)
	}
}

func TestDropsSubmissionsAfterStop(t *testing.T) {
	handler := &recordingHandler{}
	s := New(Config{Handler: handler})
	_ = s.Start()
	if !s.Stop(time.Second) {
		t.Fatal("stop failed")
	}

	s.Process(events.Request{ID: "late"})

	if len(handler.requests) != 0 {
		t.Fatalf("expected post-stop submission to be dropped, got %v", handler.requests)
	}
}
