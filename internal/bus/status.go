package bus

// PauseController is the pause gate the dashboard's togglePause message
// flips, satisfied by mailbox.PauseGate.
type PauseController interface {
	IsPaused() bool
	Toggle() bool
}

// TaskCounter reports the running completed/on-hold totals, satisfied by
// acceptance.Decider.
type TaskCounter interface {
	Counts() (completed, onHold int)
}

// StatusProvider assembles the current updateStatus payload fields.
type StatusProvider struct {
	pause    PauseController
	counter  TaskCounter
}

func NewStatusProvider(pause PauseController, counter TaskCounter) *StatusProvider {
	return &StatusProvider{pause: pause, counter: counter}
}

func (s *StatusProvider) current() (completed, onHold int, paused bool) {
	completed, onHold = s.counter.Counts()
	return completed, onHold, s.pause.IsPaused()
}
