package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type CommandAllocator struct {
	object
	dev  *Device
	kind gpu.QueueKind

	mu            sync.Mutex
	open          *CommandList
	pendingSignal bool
	retireFence   *Fence
	retireValue   uint64
	resets        int
}

// Reset fails while a list records into the allocator, while executed work
// has not been followed by a signal, or while that signal is not complete.
func (a *CommandAllocator) Reset() error {
	if a.isReleased() {
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusInvalidArg, "allocator released")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open != nil {
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusFail, "a command list is still recording into the allocator")
	}
	unsafe := a.pendingSignal || (a.retireFence != nil && a.retireFence.CompletedValue() < a.retireValue)
	if unsafe {
		a.dev.count(func(s *Stats) { s.UnsafeAllocatorResets++ })
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusFail, "allocator is still in use by the GPU")
	}
	a.retireFence = nil
	a.retireValue = 0
	a.resets++
	return nil
}

// Resets is the number of successful resets.
func (a *CommandAllocator) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

func (a *CommandAllocator) markExecuted() {
	a.mu.Lock()
	a.pendingSignal = true
	a.mu.Unlock()
}

func (a *CommandAllocator) retire(f *Fence, value uint64) {
	a.mu.Lock()
	a.pendingSignal = false
	a.retireFence = f
	a.retireValue = value
	a.mu.Unlock()
}

func (a *CommandAllocator) Release() { a.release() }

type Op string

const (
	OpBarrier         Op = "ResourceBarrier"
	OpSetRenderTarget Op = "SetRenderTargets"
	OpClearRTV        Op = "ClearRenderTargetView"
	OpClearDSV        Op = "ClearDepthStencilView"
	OpSetRootSig      Op = "SetGraphicsRootSignature"
	OpSetPipeline     Op = "SetPipelineState"
	OpSetViewport     Op = "SetViewport"
	OpSetScissor      Op = "SetScissorRect"
	OpSetTopology     Op = "SetPrimitiveTopology"
	OpSetVertexBuffer Op = "SetVertexBuffer"
	OpSetIndexBuffer  Op = "SetIndexBuffer"
	OpSetRootCBV      Op = "SetGraphicsRootConstantBuffer"
	OpDrawIndexed     Op = "DrawIndexedInstanced"
	OpCopyBuffer      Op = "CopyBufferRegion"
)

// Command is one recorded call.
type Command struct {
	Op         Op
	Barriers   []gpu.Barrier
	RTV        gpu.DescriptorHandle
	DSV        *gpu.DescriptorHandle
	Color      [4]float32
	Depth      float32
	RootSig    gpu.RootSignature
	Pipeline   gpu.PipelineState
	Viewport   gpu.Viewport
	Scissor    gpu.Rect
	Topology   gpu.Topology
	VB         gpu.VertexBufferView
	IB         gpu.IndexBufferView
	Param      int
	Buffer     gpu.Resource
	IndexCount uint32
	Instances  uint32
	Dst, Src   gpu.Resource
	Size       uint64
}

type CommandList struct {
	object
	dev  *Device
	kind gpu.QueueKind

	mu        sync.Mutex
	alloc     *CommandAllocator
	recording bool
	invalid   error
	commands  []Command
}

func (l *CommandList) Reset(alloc gpu.CommandAllocator, pso gpu.PipelineState) error {
	if l.isReleased() {
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusInvalidArg, "command list released")
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok || a.isReleased() {
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusInvalidArg, "not a live headless allocator")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recording {
		l.dev.count(func(s *Stats) { s.ResetWhileRecording++ })
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusFail, "command list is already recording")
	}
	a.mu.Lock()
	if a.open != nil {
		a.mu.Unlock()
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusFail, "allocator already has a recording list")
	}
	a.open = l
	a.mu.Unlock()

	l.alloc = a
	l.recording = true
	l.invalid = nil
	l.commands = l.commands[:0]
	if pso != nil {
		l.commands = append(l.commands, Command{Op: OpSetPipeline, Pipeline: pso})
	}
	l.dev.beginRecording()
	return nil
}

func (l *CommandList) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recording {
		return gpu.NewStatusError("CommandList.Close", gpu.StatusFail, "command list is not recording")
	}
	l.recording = false
	l.alloc.mu.Lock()
	l.alloc.open = nil
	l.alloc.mu.Unlock()
	l.dev.endRecording()
	return l.invalid
}

// Recording reports whether the list is open.
func (l *CommandList) Recording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording
}

// Commands returns the current or last recording.
func (l *CommandList) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.commands...)
}

func (l *CommandList) record(c Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recording {
		if l.invalid == nil {
			l.invalid = gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "recorded into a closed command list")
		}
		return
	}
	l.commands = append(l.commands, c)
}

func (l *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	l.record(Command{Op: OpBarrier, Barriers: append([]gpu.Barrier(nil), barriers...)})
}

func (l *CommandList) SetRenderTargets(rtv gpu.DescriptorHandle, dsv *gpu.DescriptorHandle) {
	l.record(Command{Op: OpSetRenderTarget, RTV: rtv, DSV: dsv})
}

func (l *CommandList) ClearRenderTargetView(rtv gpu.DescriptorHandle, color [4]float32) {
	l.record(Command{Op: OpClearRTV, RTV: rtv, Color: color})
}

func (l *CommandList) ClearDepthStencilView(dsv gpu.DescriptorHandle, depth float32) {
	l.record(Command{Op: OpClearDSV, DSV: &dsv, Depth: depth})
}

func (l *CommandList) SetGraphicsRootSignature(rs gpu.RootSignature) {
	l.record(Command{Op: OpSetRootSig, RootSig: rs})
}

func (l *CommandList) SetPipelineState(pso gpu.PipelineState) {
	l.record(Command{Op: OpSetPipeline, Pipeline: pso})
}

func (l *CommandList) SetViewport(vp gpu.Viewport) {
	l.record(Command{Op: OpSetViewport, Viewport: vp})
}

func (l *CommandList) SetScissorRect(r gpu.Rect) {
	l.record(Command{Op: OpSetScissor, Scissor: r})
}

func (l *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	l.record(Command{Op: OpSetTopology, Topology: t})
}

func (l *CommandList) SetVertexBuffer(view gpu.VertexBufferView) {
	l.record(Command{Op: OpSetVertexBuffer, VB: view})
}

func (l *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	l.record(Command{Op: OpSetIndexBuffer, IB: view})
}

func (l *CommandList) SetGraphicsRootConstantBuffer(param int, res gpu.Resource) {
	l.record(Command{Op: OpSetRootCBV, Param: param, Buffer: res})
}

func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount uint32) {
	l.record(Command{Op: OpDrawIndexed, IndexCount: indexCount, Instances: instanceCount})
}

func (l *CommandList) CopyBufferRegion(dst gpu.Resource, src gpu.Resource, size uint64) {
	l.record(Command{Op: OpCopyBuffer, Dst: dst, Src: src, Size: size})
}

func (l *CommandList) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recording && !l.isReleased() {
		l.recording = false
		l.alloc.mu.Lock()
		l.alloc.open = nil
		l.alloc.mu.Unlock()
		l.dev.endRecording()
	}
	l.release()
}

// drawState is what a draw needs bound before it can run.
type drawState struct {
	rootSig  *RootSignature
	pipeline *PipelineState
	rtv      *Resource
	vb, ib   *Resource
	cbv      map[int]*Resource
}

// replay executes cmds on the CPU. It returns every resource the commands
// touched so the queue can track their GPU lifetime.
func replay(d *Device, cmds []Command) ([]*Resource, error) {
	var used []*Resource
	use := func(op Op, res gpu.Resource) (*Resource, error) {
		r, err := asResource(string(op), res)
		if err != nil {
			return nil, err
		}
		used = append(used, r)
		return r, nil
	}
	st := drawState{cbv: map[int]*Resource{}}

	for _, c := range cmds {
		switch c.Op {
		case OpBarrier:
			for _, b := range c.Barriers {
				r, err := use(c.Op, b.Resource)
				if err != nil {
					return nil, err
				}
				r.mu.Lock()
				if r.state != b.Before {
					state := r.state
					r.mu.Unlock()
					return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg,
						fmt.Sprintf("barrier expects %s but resource is in %s", b.Before, state))
				}
				r.state = b.After
				r.mu.Unlock()
			}
		case OpSetRenderTarget:
			r, err := viewOf(string(c.Op), c.RTV)
			if err != nil {
				return nil, err
			}
			st.rtv = r
			used = append(used, r)
			if c.DSV != nil {
				dsv, err := viewOf(string(c.Op), *c.DSV)
				if err != nil {
					return nil, err
				}
				used = append(used, dsv)
			}
		case OpClearRTV:
			r, err := viewOf(string(c.Op), c.RTV)
			if err != nil {
				return nil, err
			}
			if r.State() != gpu.StateRenderTarget {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "render target is in "+r.State().String())
			}
		case OpClearDSV:
			r, err := viewOf(string(c.Op), *c.DSV)
			if err != nil {
				return nil, err
			}
			if r.State() != gpu.StateDepthWrite {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "depth buffer is in "+r.State().String())
			}
		case OpSetRootSig:
			rs, ok := c.RootSig.(*RootSignature)
			if !ok || rs.isReleased() {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "invalid root signature")
			}
			st.rootSig = rs
		case OpSetPipeline:
			p, ok := c.Pipeline.(*PipelineState)
			if !ok || p.isReleased() {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "invalid pipeline state")
			}
			st.pipeline = p
		case OpSetVertexBuffer:
			r, err := use(c.Op, c.VB.Resource)
			if err != nil {
				return nil, err
			}
			st.vb = r
		case OpSetIndexBuffer:
			r, err := use(c.Op, c.IB.Resource)
			if err != nil {
				return nil, err
			}
			st.ib = r
		case OpSetRootCBV:
			if st.rootSig == nil || c.Param < 0 || c.Param >= len(st.rootSig.desc.Parameters) {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, fmt.Sprintf("root parameter %d is not declared", c.Param))
			}
			r, err := use(c.Op, c.Buffer)
			if err != nil {
				return nil, err
			}
			st.cbv[c.Param] = r
		case OpDrawIndexed:
			switch {
			case st.pipeline == nil || st.rootSig == nil:
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "draw without pipeline state or root signature")
			case st.rtv == nil:
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "draw without render target")
			case st.vb == nil || st.vb.State() != gpu.StateVertexAndConstantBuffer:
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "vertex buffer missing or not in VERTEX_AND_CONSTANT_BUFFER")
			case st.ib == nil || st.ib.State() != gpu.StateIndexBuffer:
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "index buffer missing or not in INDEX_BUFFER")
			case len(st.cbv) < len(st.rootSig.desc.Parameters):
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidCall, "root parameters left unbound")
			}
			d.count(func(s *Stats) { s.Draws++ })
		case OpCopyBuffer:
			dst, err := use(c.Op, c.Dst)
			if err != nil {
				return nil, err
			}
			src, err := use(c.Op, c.Src)
			if err != nil {
				return nil, err
			}
			if dst.State() != gpu.StateCopyDest {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "copy destination is in "+dst.State().String())
			}
			if c.Size > uint64(len(dst.data)) || c.Size > uint64(len(src.data)) {
				return nil, gpu.NewStatusError(string(c.Op), gpu.StatusInvalidArg, "copy out of bounds")
			}
			src.mu.Lock()
			chunk := append([]byte(nil), src.data[:c.Size]...)
			src.mu.Unlock()
			dst.mu.Lock()
			copy(dst.data, chunk)
			dst.mu.Unlock()
			d.count(func(s *Stats) { s.Copies++ })
		}
	}
	return used, nil
}
