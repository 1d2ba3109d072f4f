package vulkan

import (
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

const fencePollInterval = 250 * time.Microsecond

type fenceSignal struct {
	value  uint64
	handle vk.Fence
}

// Fence emulates a value carrying fence. Every Signal submits an empty batch
// with its own binary VkFence; the completed value is the highest value whose
// VkFence is signaled, checked in submission order.
type Fence struct {
	dev *Device

	mu        sync.Mutex
	completed uint64
	pending   []fenceSignal
	free      []vk.Fence
	done      chan struct{}
	released  bool
}

var _ gpu.Fence = (*Fence)(nil)

func newFence(d *Device, initial uint64) *Fence {
	return &Fence{
		dev:       d,
		completed: initial,
		done:      make(chan struct{}),
	}
}

// handle returns an unsignaled VkFence, reusing retired ones.
func (f *Fence) handle() (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.free); n > 0 {
		h := f.free[n-1]
		f.free = f.free[:n-1]
		return h, nil
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var h vk.Fence
	if err := check("vkCreateFence", vk.CreateFence(f.dev.handle, &fenceCreateInfo, f.dev.ctx.Allocator, &h)); err != nil {
		return vk.NullFence, err
	}
	return h, nil
}

func (f *Fence) push(value uint64, h vk.Fence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fenceSignal{value: value, handle: h})
}

// recycle hands back a VkFence whose submission failed.
func (f *Fence) recycle(h vk.Fence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free = append(f.free, h)
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.pending) > 0 {
		head := f.pending[0]
		res := vk.GetFenceStatus(f.dev.handle, head.handle)
		if res == vk.NotReady {
			break
		}
		if res != vk.Success {
			core.LogError("vkGetFenceStatus failed with %s", VulkanResultString(res))
			break
		}
		if head.value > f.completed {
			f.completed = head.value
		}
		vk.ResetFences(f.dev.handle, 1, []vk.Fence{head.handle})
		f.free = append(f.free, head.handle)
		f.pending = f.pending[1:]
	}
	return f.completed
}

func (f *Fence) SetEventOnCompletion(value uint64, ev *gpu.Event) error {
	f.mu.Lock()
	released := f.released
	f.mu.Unlock()
	if released {
		return gpu.NewStatusError("SetEventOnCompletion", gpu.StatusAlreadyReleased, "fence released")
	}

	if f.CompletedValue() >= value {
		ev.Signal()
		return nil
	}
	go f.watch(value, ev)
	return nil
}

func (f *Fence) watch(value uint64, ev *gpu.Event) {
	ticker := time.NewTicker(fencePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			if f.CompletedValue() >= value {
				ev.Signal()
				return
			}
		}
	}
}

func (f *Fence) Release() {
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return
	}
	f.released = true
	close(f.done)
	handles := make([]vk.Fence, 0, len(f.free)+len(f.pending))
	handles = append(handles, f.free...)
	for _, p := range f.pending {
		handles = append(handles, p.handle)
	}
	f.pending = nil
	f.free = nil
	f.mu.Unlock()

	if len(handles) == 0 {
		return
	}
	// Pending signals must retire before their fences go away.
	f.dev.waitIdle()
	for _, h := range handles {
		vk.DestroyFence(f.dev.handle, h, f.dev.ctx.Allocator)
	}
}
