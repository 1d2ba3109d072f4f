package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

const DefaultFenceTimeout = 10 * time.Second

// Synchronizer blocks the CPU until a fence reaches a value. It owns the
// wait event and is only used from the render thread.
type Synchronizer struct {
	Timeout time.Duration
	event   *gpu.Event
	waits   int
}

func NewSynchronizer(timeout time.Duration) *Synchronizer {
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	return &Synchronizer{
		Timeout: timeout,
		event:   gpu.NewEvent(),
	}
}

// WaitForSlot returns once fence reached target. Exceeding the timeout is an
// ErrGPUHang and is never retried.
func (s *Synchronizer) WaitForSlot(slot int, fence gpu.Fence, target uint64) error {
	if fence.CompletedValue() >= target {
		return nil
	}
	s.event.Reset()
	if err := fence.SetEventOnCompletion(target, s.event); err != nil {
		return core.Fail(core.ErrSubmission, fmt.Sprintf("SetEventOnCompletion(slot %d)", slot), err)
	}
	s.waits++
	deadline := time.Now().Add(s.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining > 0 && s.event.Wait(remaining) {
			// a wake left over from an earlier wait does not count
			if fence.CompletedValue() >= target {
				return nil
			}
			continue
		}
		completed := fence.CompletedValue()
		if completed >= target {
			return nil
		}
		return core.Fail(core.ErrGPUHang, fmt.Sprintf("WaitForSlot(slot %d)", slot),
			gpu.NewStatusError("WaitForSingleObject", gpu.StatusWaitTimeout,
				fmt.Sprintf("fence at %d, waiting for %d after %s", completed, target, s.Timeout)))
	}
}

// WaitIdle waits for the last value signaled on every slot.
func (s *Synchronizer) WaitIdle(frames *FrameResources) error {
	for i, slot := range frames.Slots {
		if err := s.WaitForSlot(i, slot.Fence, slot.Signaled); err != nil {
			return err
		}
	}
	return nil
}

// Waits is the number of waits that had to block.
func (s *Synchronizer) Waits() int { return s.waits }
