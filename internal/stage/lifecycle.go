package stage

import "sync/atomic"

// State is a point in a stage's lifecycle. States progress linearly; there
// are no back-transitions.
type State int32

const (
	// New is the state a stage starts in, before Start is called.
	New State = iota
	// Running accepts Process/ProcessBatch calls normally.
	Running
	// Stopping refuses new submissions and is draining buffered work.
	Stopping
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// StateMachine is an atomic NEW->RUNNING->STOPPING->STOPPED tracker shared
// by every stage implementation, so lifecycle bookkeeping doesn't have to
// be reinvented per stage.
type StateMachine struct {
	state atomic.Int32
}

// Load returns the current state.
func (m *StateMachine) Load() State {
	return State(m.state.Load())
}

// TransitionToRunning moves NEW->RUNNING. Returns false if the stage was
// not in NEW (already started, or already stopping/stopped).
func (m *StateMachine) TransitionToRunning() bool {
	return m.state.CompareAndSwap(int32(New), int32(Running))
}

// BeginStop moves RUNNING->STOPPING. Returns false if the stage was not
// RUNNING (never started, or a stop is already in progress/complete).
func (m *StateMachine) BeginStop() bool {
	return m.state.CompareAndSwap(int32(Running), int32(Stopping))
}

// FinishStop moves STOPPING->STOPPED unconditionally.
func (m *StateMachine) FinishStop() {
	m.state.Store(int32(Stopped))
}

// IsRunning reports whether the stage currently accepts submissions.
func (m *StateMachine) IsRunning() bool {
	return m.Load() == Running
}
