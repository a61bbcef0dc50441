package transform

import (
	"testing"
	"time"
)

type recordingDownstream struct {
	items []string
}

func (r *recordingDownstream) Process(item string)         { r.items = append(r.items, item) }
func (r *recordingDownstream) ProcessBatch(items []string)  { r.items = append(r.items, items...) }
func (r *recordingDownstream) Start() error                 { return nil }
func (r *recordingDownstream) Stop(time.Duration) bool      { return true }

func TestStageAppliesFunctionsInOrderAndForwardsUnchanged(t *testing.T) {
	var order []string
	down := &recordingDownstream{}
	s := New[string](down,
		func(item string) { order = append(order, "first:"+item) },
		func(item string) { order = append(order, "second:"+item) },
	)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Process("a")

	if want := []string{"first:a", "second:a"}; !equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if want := []string{"a"}; !equal(down.items, want) {
		t.Fatalf("downstream items = %v, want %v", down.items, want)
	}
}

func TestStageIsolatesPanickingFunction(t *testing.T) {
	down := &recordingDownstream{}
	called := false
	s := New[string](down,
		func(string) { panic("boom") },
		func(string) { called = true },
	)
	_ = s.Start()

	s.Process("a")

	if !called {
		t.Fatal("second function did not run after the first panicked")
	}
	if want := []string{"a"}; !equal(down.items, want) {
		t.Fatalf("item did not flow downstream after a panicking transformer: got %v", down.items)
	}
}

func TestStageDropsSubmissionsAfterStop(t *testing.T) {
	down := &recordingDownstream{}
	s := New[string](down)
	_ = s.Start()
	s.Stop(time.Second)

	s.Process("late")

	if len(down.items) != 0 {
		t.Fatalf("expected post-stop submission to be dropped, got %v", down.items)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
