package gpu

import "time"

// Event is an auto-reset wait handle. Signals are not counted: several
// signals before a Wait wake it once.
type Event struct {
	ch chan struct{}
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{}, 1)}
}

func (e *Event) Signal() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signaled or timeout elapses. It reports
// whether the event was signaled.
func (e *Event) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-e.ch:
		return true
	case <-t.C:
		return false
	}
}

// Reset drops a pending signal.
func (e *Event) Reset() {
	select {
	case <-e.ch:
	default:
	}
}
