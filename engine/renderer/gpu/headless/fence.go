package headless

import (
	"sync"
	"time"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type waiter struct {
	value uint64
	ev    *gpu.Event
}

// Fence completes values signaled by a queue, immediately or after the
// factory's FenceDelay. Hold stops completion until Resume, which simulates
// a GPU that stopped making progress.
type Fence struct {
	object
	delay time.Duration

	mu        sync.Mutex
	completed uint64
	held      bool
	pending   uint64
	waiters   []waiter
	signals   []uint64
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) SetEventOnCompletion(value uint64, ev *gpu.Event) error {
	if f.isReleased() {
		return gpu.NewStatusError("SetEventOnCompletion", gpu.StatusInvalidArg, "fence released")
	}
	if ev == nil {
		return gpu.NewStatusError("SetEventOnCompletion", gpu.StatusInvalidArg, "nil event")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed >= value {
		ev.Signal()
		return nil
	}
	f.waiters = append(f.waiters, waiter{value: value, ev: ev})
	return nil
}

// Signal sets the completed value from the CPU side.
func (f *Fence) Signal(value uint64) {
	f.complete(value)
}

// Hold stops the GPU side from completing values.
func (f *Fence) Hold() {
	f.mu.Lock()
	f.held = true
	f.mu.Unlock()
}

// Resume completes every value signaled while the fence was held.
func (f *Fence) Resume() {
	f.mu.Lock()
	f.held = false
	v := f.pending
	f.pending = 0
	f.mu.Unlock()
	if v > 0 {
		f.complete(v)
	}
}

// Signals lists the values the queue signaled, in order.
func (f *Fence) Signals() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.signals...)
}

// Waits returns the number of registered waiters not yet woken.
func (f *Fence) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *Fence) queueSignal(value uint64) {
	f.mu.Lock()
	f.signals = append(f.signals, value)
	f.mu.Unlock()
	if f.delay > 0 {
		time.AfterFunc(f.delay, func() { f.gpuComplete(value) })
		return
	}
	f.gpuComplete(value)
}

func (f *Fence) gpuComplete(value uint64) {
	f.mu.Lock()
	if f.held {
		if value > f.pending {
			f.pending = value
		}
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.complete(value)
}

// complete never moves the fence backwards.
func (f *Fence) complete(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	remaining := f.waiters[:0]
	var ready []*gpu.Event
	for _, w := range f.waiters {
		if w.value <= f.completed {
			ready = append(ready, w.ev)
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, ev := range ready {
		ev.Signal()
	}
}

func (f *Fence) Release() { f.release() }
