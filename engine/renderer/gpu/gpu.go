// Package gpu defines the explicit GPU interfaces the renderer is written
// against. The model is a D3D12-style API: adapters, a direct queue, fences
// carrying monotonically increasing values, command allocators with a single
// reusable command list, descriptor heaps and heap-typed resources.
//
// Recording methods on CommandList do not return errors. Invalid recording is
// reported by Close or by the queue when the list is executed.
package gpu

// Factory enumerates adapters and creates swapchains for a window.
type Factory interface {
	Adapters() ([]Adapter, error)

	// CreateSwapchain creates a swapchain that presents through queue.
	CreateSwapchain(queue Queue, desc SwapchainDesc) (Swapchain, error)

	Release()
}

// Adapter is a physical GPU.
type Adapter interface {
	Description() AdapterDesc

	// Outputs lists the displays attached to the adapter.
	Outputs() ([]Output, error)

	// CreateDevice fails when the adapter cannot provide level.
	CreateDevice(level FeatureLevel) (Device, error)
}

// Output is a display attached to an adapter.
type Output interface {
	Name() string
	DisplayModes(format Format) ([]DisplayMode, error)
}

// Device creates every other GPU object.
type Device interface {
	CreateCommandQueue(kind QueueKind) (Queue, error)
	CreateCommandAllocator(kind QueueKind) (CommandAllocator, error)

	// CreateCommandList returns a list that is already recording into alloc.
	// pso may be nil.
	CreateCommandList(kind QueueKind, alloc CommandAllocator, pso PipelineState) (CommandList, error)

	CreateFence(initial uint64) (Fence, error)
	CreateDescriptorHeap(kind HeapKind, count int) (DescriptorHeap, error)
	CreateRenderTargetView(res Resource, handle DescriptorHandle) error
	CreateDepthStencilView(res Resource, handle DescriptorHandle) error
	CreateResource(desc ResourceDesc) (Resource, error)
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)

	Release()
}

// Queue executes closed command lists in submission order.
type Queue interface {
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted work completed.
	Signal(fence Fence, value uint64) error

	Release()
}

// Fence is a counter the GPU advances as submitted work retires.
type Fence interface {
	// CompletedValue is the last value the GPU reached.
	CompletedValue() uint64

	// SetEventOnCompletion signals ev once CompletedValue reaches value.
	// If it already did, ev is signaled immediately.
	SetEventOnCompletion(value uint64, ev *Event) error

	Release()
}

// CommandAllocator backs the memory of recorded commands.
type CommandAllocator interface {
	// Reset reclaims the memory. It fails if the GPU may still execute
	// commands recorded through the allocator.
	Reset() error
	Release()
}

// CommandList records GPU commands into an allocator.
type CommandList interface {
	// Reset starts a new recording into alloc. It fails if the list is
	// already recording.
	Reset(alloc CommandAllocator, pso PipelineState) error
	Close() error

	ResourceBarrier(barriers ...Barrier)
	SetRenderTargets(rtv DescriptorHandle, dsv *DescriptorHandle)
	ClearRenderTargetView(rtv DescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv DescriptorHandle, depth float32)
	SetGraphicsRootSignature(rs RootSignature)
	SetPipelineState(pso PipelineState)
	SetViewport(vp Viewport)
	SetScissorRect(r Rect)
	SetPrimitiveTopology(t Topology)
	SetVertexBuffer(view VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	SetGraphicsRootConstantBuffer(param int, res Resource)
	DrawIndexedInstanced(indexCount, instanceCount uint32)
	CopyBufferRegion(dst Resource, src Resource, size uint64)

	Release()
}

// Swapchain is the ring of presentable back buffers.
type Swapchain interface {
	// CurrentBackBufferIndex is the buffer the next frame must draw into.
	// It only changes after Present.
	CurrentBackBufferIndex() int
	BufferCount() int
	Buffer(i int) (Resource, error)
	Present(syncInterval uint32) error
	Release()
}

type Resource interface {
	Desc() ResourceDesc

	// Map returns CPU-visible memory. Only upload heap resources can be mapped.
	Map() ([]byte, error)
	Unmap()
	Release()
}

type DescriptorHeap interface {
	Kind() HeapKind
	Len() int
	Handle(i int) DescriptorHandle
	Release()
}

// DescriptorHandle addresses one descriptor inside a heap.
type DescriptorHandle struct {
	Heap  DescriptorHeap
	Index int
}

type RootSignature interface {
	Release()
}

type PipelineState interface {
	Release()
}
