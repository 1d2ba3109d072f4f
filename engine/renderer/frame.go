package renderer

import (
	"fmt"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
	SlotPresented
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	case SlotPresented:
		return "Presented"
	}
	return fmt.Sprintf("SlotState(%d)", uint8(s))
}

// FrameSlot is the in-flight state of one back buffer.
type FrameSlot struct {
	Allocator  gpu.CommandAllocator
	Fence      gpu.Fence
	FenceValue uint64
	State      SlotState

	// Signaled is the last value queued for the fence.
	Signaled uint64

	// Transform is the slot's constant buffer, mapped for its whole life.
	Transform       gpu.Resource
	TransformMemory []byte
}

type FrameResources struct {
	Slots []*FrameSlot
}

// CreateFrameResources gives each slot its own allocator and a fence at 0.
func CreateFrameResources(dev *Device, count int) (_ *FrameResources, err error) {
	if count <= 0 {
		return nil, core.Fail(core.ErrInitialization, "CreateFrameResources",
			gpu.NewStatusError("CreateFrameResources", gpu.StatusInvalidArg, "no frame slots"))
	}
	fr := &FrameResources{Slots: make([]*FrameSlot, 0, count)}
	defer func() {
		if err != nil {
			fr.release()
		}
	}()

	for i := 0; i < count; i++ {
		alloc, err := dev.Device.CreateCommandAllocator(gpu.QueueDirect)
		if err != nil {
			return nil, core.Fail(core.ErrInitialization, fmt.Sprintf("CreateCommandAllocator(%d)", i), err)
		}
		fence, err := dev.Device.CreateFence(0)
		if err != nil {
			alloc.Release()
			return nil, core.Fail(core.ErrInitialization, fmt.Sprintf("CreateFence(%d)", i), err)
		}
		fr.Slots = append(fr.Slots, &FrameSlot{Allocator: alloc, Fence: fence})
	}
	return fr, nil
}

func (fr *FrameResources) Len() int { return len(fr.Slots) }

func (fr *FrameResources) Slot(i int) *FrameSlot { return fr.Slots[i] }

// FenceValues returns a snapshot of every slot's fence value.
func (fr *FrameResources) FenceValues() []uint64 {
	out := make([]uint64, len(fr.Slots))
	for i, s := range fr.Slots {
		out[i] = s.FenceValue
	}
	return out
}

// recording returns the index of the slot that is recording, or -1.
func (fr *FrameResources) recording() int {
	for i, s := range fr.Slots {
		if s.State == SlotRecording {
			return i
		}
	}
	return -1
}

func (fr *FrameResources) release() {
	for _, s := range fr.Slots {
		s.Fence.Release()
		s.Allocator.Release()
	}
	fr.Slots = nil
}

func (fr *FrameResources) track(rt *core.ResourceTable) {
	for i, s := range fr.Slots {
		rt.Acquire(fmt.Sprintf("allocator %d", i), s.Allocator)
		rt.Acquire(fmt.Sprintf("fence %d", i), s.Fence)
	}
}
