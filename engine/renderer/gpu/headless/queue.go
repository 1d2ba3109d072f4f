package headless

import (
	"sync"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Queue replays command lists synchronously when they are executed. Work is
// considered retired when a later Signal on the queue completes.
type Queue struct {
	object
	dev  *Device
	kind gpu.QueueKind

	mu         sync.Mutex
	unsignaled []*CommandAllocator
	inFlight   []*Resource
	signals    int
}

func (q *Queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	if q.isReleased() {
		return gpu.NewStatusError("ExecuteCommandLists", gpu.StatusInvalidCall, "queue released")
	}
	for _, cl := range lists {
		l, ok := cl.(*CommandList)
		if !ok || l.isReleased() {
			return gpu.NewStatusError("ExecuteCommandLists", gpu.StatusInvalidArg, "not a live headless command list")
		}
		l.mu.Lock()
		recording, invalid, alloc := l.recording, l.invalid, l.alloc
		cmds := append([]Command(nil), l.commands...)
		l.mu.Unlock()

		if recording {
			return gpu.NewStatusError("ExecuteCommandLists", gpu.StatusInvalidCall, "command list is still recording")
		}
		if invalid != nil {
			return invalid
		}
		used, err := replay(q.dev, cmds)
		if err != nil {
			return err
		}
		alloc.markExecuted()

		q.mu.Lock()
		q.unsignaled = append(q.unsignaled, alloc)
		for _, r := range used {
			r.markInFlight(q.dev)
			q.inFlight = append(q.inFlight, r)
		}
		q.mu.Unlock()
		q.dev.count(func(s *Stats) { s.Executes++ })
	}
	return nil
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	if q.isReleased() {
		return gpu.NewStatusError("Signal", gpu.StatusInvalidCall, "queue released")
	}
	f, ok := fence.(*Fence)
	if !ok || f.isReleased() {
		return gpu.NewStatusError("Signal", gpu.StatusInvalidArg, "not a live headless fence")
	}
	q.mu.Lock()
	q.signals++
	if fail := q.dev.f.opts.FailSignal; fail != nil && fail(q.signals) {
		q.mu.Unlock()
		return gpu.NewStatusError("Signal", gpu.StatusDeviceRemoved, "signal rejected")
	}
	allocs, used := q.unsignaled, q.inFlight
	q.unsignaled, q.inFlight = nil, nil
	q.mu.Unlock()

	for _, a := range allocs {
		a.retire(f, value)
	}
	for _, r := range used {
		r.retire(f, value)
	}
	f.queueSignal(value)
	return nil
}

func (q *Queue) Release() { q.release() }
