package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/trajectory/engine/containers"
	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// TransformBufferSize is one constant buffer, padded to the 256 byte alignment.
const TransformBufferSize = 256

// Pipeline is the root signature and the immutable pipeline state built from it.
type Pipeline struct {
	RootSignature gpu.RootSignature
	State         gpu.PipelineState
	Stride        uint32
}

// Buffer is a static GPU-local buffer.
type Buffer struct {
	Resource gpu.Resource
	Size     uint64
	State    gpu.ResourceState
}

func (b *Buffer) VertexView(stride uint32) gpu.VertexBufferView {
	return gpu.VertexBufferView{Resource: b.Resource, Stride: stride, Size: uint32(b.Size)}
}

func (b *Buffer) IndexView(format gpu.Format) gpu.IndexBufferView {
	return gpu.IndexBufferView{Resource: b.Resource, Format: format, Size: uint32(b.Size)}
}

type pendingUpload struct {
	id    uuid.UUID
	value uint64
}

// PipelineBuilder creates the pipeline and uploads static data through the
// shared command list. Staging buffers stay alive until the upload fence
// reached the value signaled after their copy.
type PipelineBuilder struct {
	dev       *Device
	table     *core.ResourceTable
	sync      *Synchronizer
	list      gpu.CommandList
	allocator gpu.CommandAllocator
	fence     gpu.Fence

	fenceValue uint64
	recording  bool
	pending    *containers.RingQueue[pendingUpload]
}

// NewPipelineBuilder creates the upload allocator, the upload fence and the
// shared command list. The list starts out recording.
func NewPipelineBuilder(dev *Device, sync *Synchronizer, table *core.ResourceTable) (*PipelineBuilder, error) {
	alloc, err := dev.Device.CreateCommandAllocator(gpu.QueueDirect)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateCommandAllocator(upload)", err)
	}
	table.Acquire("upload allocator", alloc)

	fence, err := dev.Device.CreateFence(0)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateFence(upload)", err)
	}
	table.Acquire("upload fence", fence)

	list, err := dev.Device.CreateCommandList(gpu.QueueDirect, alloc, nil)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateCommandList", err)
	}
	table.Acquire("command list", list)

	return &PipelineBuilder{
		dev:       dev,
		table:     table,
		sync:      sync,
		list:      list,
		allocator: alloc,
		fence:     fence,
		recording: true,
		pending:   containers.NewRingQueue[pendingUpload](4),
	}, nil
}

// List is the command list shared with the scheduler.
func (b *PipelineBuilder) List() gpu.CommandList { return b.list }

func (b *PipelineBuilder) Fence() gpu.Fence { return b.fence }

func (b *PipelineBuilder) FenceValue() uint64 { return b.fenceValue }

func (b *PipelineBuilder) PendingUploads() int { return b.pending.Len() }

func layoutStride(layout []gpu.InputElement) uint32 {
	var stride uint32
	for _, e := range layout {
		if end := e.Offset + e.Format.Size(); end > stride {
			stride = end
		}
	}
	return stride
}

// BuildPipeline creates a root signature with one constant buffer at b0
// visible to the vertex stage, and a triangle list pipeline with back face
// culling and a less-than depth test.
func (b *PipelineBuilder) BuildPipeline(vs, ps []byte, layout []gpu.InputElement) (*Pipeline, error) {
	rs, err := b.dev.Device.CreateRootSignature(gpu.RootSignatureDesc{
		Parameters: []gpu.RootParameter{
			{Kind: gpu.RootConstantBufferView, Register: 0, Visibility: gpu.StageVertex},
		},
	})
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateRootSignature", err)
	}
	rsID := b.table.Acquire("root signature", rs)

	stride := layoutStride(layout)
	pso, err := b.dev.Device.CreatePipelineState(gpu.PipelineDesc{
		RootSignature: rs,
		VS:            vs,
		PS:            ps,
		InputLayout:   layout,
		Stride:        stride,
		Topology:      gpu.TopologyTriangleList,
		CullMode:      gpu.CullBack,
		DepthTest:     true,
		DepthFunc:     gpu.CompareLess,
		RTVFormat:     BackBufferFormat,
		DSVFormat:     gpu.FormatD32Float,
	})
	if err != nil {
		_ = b.table.Release(rsID)
		return nil, core.Fail(core.ErrInitialization, "CreateGraphicsPipelineState", err)
	}
	b.table.Acquire("pipeline state", pso)

	return &Pipeline{RootSignature: rs, State: pso, Stride: stride}, nil
}

// begin makes sure the shared list is recording into the upload allocator.
func (b *PipelineBuilder) begin() error {
	if b.recording {
		return nil
	}
	if err := b.sync.WaitForSlot(-1, b.fence, b.fenceValue); err != nil {
		return err
	}
	if err := b.allocator.Reset(); err != nil {
		return err
	}
	if err := b.list.Reset(b.allocator, nil); err != nil {
		return err
	}
	b.recording = true
	return nil
}

// submit closes the list, executes it and signals the next upload fence
// value. executed reports whether the queue took the list; the fence value
// only advances once the signal went through.
func (b *PipelineBuilder) submit() (value uint64, executed bool, err error) {
	b.recording = false
	if err := b.list.Close(); err != nil {
		return 0, false, err
	}
	if err := b.dev.Queue.ExecuteCommandLists(b.list); err != nil {
		return 0, false, err
	}
	next := b.fenceValue + 1
	if err := b.dev.Queue.Signal(b.fence, next); err != nil {
		return next, true, err
	}
	b.fenceValue = next
	return next, true, nil
}

func (b *PipelineBuilder) retireAt(id uuid.UUID, value uint64) error {
	if b.pending.IsFull() {
		b.pending.Grow()
	}
	return b.pending.Enqueue(pendingUpload{id: id, value: value})
}

// UploadStaticBuffer copies data into a new default heap buffer through a
// staging buffer and transitions it to usage.
func (b *PipelineBuilder) UploadStaticBuffer(data []byte, usage gpu.ResourceState) (buf *Buffer, err error) {
	op := fmt.Sprintf("UploadStaticBuffer(%d bytes)", len(data))
	if len(data) == 0 {
		return nil, core.Fail(core.ErrResourceUpload, op,
			gpu.NewStatusError(op, gpu.StatusInvalidArg, "no data"))
	}
	if err := b.begin(); err != nil {
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}

	var created []uuid.UUID
	defer func() {
		if err != nil {
			for i := len(created) - 1; i >= 0; i-- {
				_ = b.table.Release(created[i])
			}
		}
	}()

	size := uint64(len(data))
	dst, err := b.dev.Device.CreateResource(gpu.ResourceDesc{
		Dimension:    gpu.DimensionBuffer,
		Width:        size,
		Heap:         gpu.HeapDefault,
		InitialState: gpu.StateCopyDest,
	})
	if err != nil {
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}
	dstID := b.table.Acquire(fmt.Sprintf("static buffer (%s)", usage), dst)
	created = append(created, dstID)

	staging, err := b.dev.Device.CreateResource(gpu.ResourceDesc{
		Dimension:    gpu.DimensionBuffer,
		Width:        size,
		Heap:         gpu.HeapUpload,
		InitialState: gpu.StateGenericRead,
	})
	if err != nil {
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}
	stagingID := b.table.Acquire("staging buffer", staging)
	created = append(created, stagingID)

	mem, err := staging.Map()
	if err != nil {
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}
	copy(mem, data)
	staging.Unmap()

	b.list.CopyBufferRegion(dst, staging, size)
	b.list.ResourceBarrier(gpu.Barrier{Resource: dst, Before: gpu.StateCopyDest, After: usage})

	value, executed, err := b.submit()
	if err != nil {
		if executed {
			// The copy may still run, so both buffers wait for the next
			// signal that reaches value.
			created = nil
			_ = b.retireAt(stagingID, value)
			_ = b.retireAt(dstID, value)
		}
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}
	if err := b.retireAt(stagingID, value); err != nil {
		return nil, core.Fail(core.ErrResourceUpload, op, err)
	}
	core.LogDebug("uploaded %d bytes as %s, staging released after upload fence reaches %d", size, usage, value)

	return &Buffer{Resource: dst, Size: size, State: usage}, nil
}

// ReleaseCompletedUploads frees, oldest first, the staging buffers whose
// copy the GPU finished. It never blocks.
func (b *PipelineBuilder) ReleaseCompletedUploads() int {
	completed := b.fence.CompletedValue()
	released := 0
	for !b.pending.IsEmpty() {
		p, _ := b.pending.Peek()
		if p.value > completed {
			break
		}
		_, _ = b.pending.Dequeue()
		if err := b.table.Release(p.id); err != nil {
			core.LogWarn("staging buffer: %s", err)
			continue
		}
		released++
	}
	return released
}

// Finish submits the list if it is still recording so that frames always
// start from a closed list.
func (b *PipelineBuilder) Finish() error {
	if !b.recording {
		return nil
	}
	if _, _, err := b.submit(); err != nil {
		return core.Fail(core.ErrResourceUpload, "Finish", err)
	}
	return nil
}

// WaitIdle blocks until the last upload completed.
func (b *PipelineBuilder) WaitIdle() error {
	return b.sync.WaitForSlot(-1, b.fence, b.fenceValue)
}

// CreateTransformBuffers gives every slot a persistently mapped constant buffer.
func (b *PipelineBuilder) CreateTransformBuffers(frames *FrameResources) error {
	for i, slot := range frames.Slots {
		op := fmt.Sprintf("CreateTransformBuffer(%d)", i)
		res, err := b.dev.Device.CreateResource(gpu.ResourceDesc{
			Dimension:    gpu.DimensionBuffer,
			Width:        TransformBufferSize,
			Heap:         gpu.HeapUpload,
			InitialState: gpu.StateGenericRead,
		})
		if err != nil {
			return core.Fail(core.ErrResourceUpload, op, err)
		}
		mem, err := res.Map()
		if err != nil {
			res.Release()
			return core.Fail(core.ErrResourceUpload, op, err)
		}
		slot.Transform = res
		slot.TransformMemory = mem
		b.table.Acquire(fmt.Sprintf("transform buffer %d", i), core.ReleaseFunc(func() {
			res.Unmap()
			res.Release()
		}))
	}
	return nil
}
