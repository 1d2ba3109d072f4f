package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type Queue struct {
	dev       *Device
	handle    vk.Queue
	swapchain *Swapchain

	// Allocators executed since the last Signal.
	executed []*CommandAllocator
}

var _ gpu.Queue = (*Queue)(nil)

func (q *Queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	drawsToSwapchain := false
	for _, l := range lists {
		list, ok := l.(*CommandList)
		if !ok {
			return gpu.NewStatusError("ExecuteCommandLists", gpu.StatusInvalidArg, "foreign command list")
		}
		if list.recording {
			return gpu.NewStatusError("ExecuteCommandLists", gpu.StatusInvalidCall, "command list is still recording")
		}
		if list.err != nil {
			return list.err
		}
		buffers = append(buffers, list.cb)
		drawsToSwapchain = drawsToSwapchain || list.touchesSwapchain
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if drawsToSwapchain && q.swapchain != nil {
		if wait, ok := q.swapchain.takeAcquire(); ok {
			submit.WaitSemaphoreCount = 1
			submit.PWaitSemaphores = []vk.Semaphore{wait}
			submit.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		}
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{q.swapchain.renderDone()}
	}

	if err := q.dev.ctx.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submit}, vk.NullFence))
	}); err != nil {
		return err
	}

	for _, l := range lists {
		list := l.(*CommandList)
		list.alloc.pendingSignal = true
		q.executed = append(q.executed, list.alloc)
	}
	return nil
}

// Signal submits an empty batch carrying a fresh VkFence, which the driver
// signals once everything submitted before it retired.
func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return gpu.NewStatusError("Signal", gpu.StatusInvalidArg, "foreign fence")
	}
	h, err := f.handle()
	if err != nil {
		return err
	}
	if err := q.dev.ctx.locks.SafeCall(QueueManagement, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(q.handle, 0, nil, h))
	}); err != nil {
		f.recycle(h)
		return err
	}
	f.push(value, h)

	for _, a := range q.executed {
		a.retire(f, value)
	}
	q.executed = q.executed[:0]
	return nil
}

func (q *Queue) Release() {
	if q.handle == nil {
		return
	}
	q.dev.ctx.locks.SafeCall(QueueManagement, func() error {
		vk.QueueWaitIdle(q.handle)
		return nil
	})
	q.handle = nil
	q.swapchain = nil
}
