package headless

import (
	"sync"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type Resource struct {
	object
	desc gpu.ResourceDesc

	mu     sync.Mutex
	state  gpu.ResourceState
	data   []byte
	mapped int

	// last GPU use, known once the queue signaled after it
	useFence *Fence
	useValue uint64
	inFlight bool
	dev      *Device
}

func asResource(op string, res gpu.Resource) (*Resource, error) {
	r, ok := res.(*Resource)
	if !ok || r == nil {
		return nil, gpu.NewStatusError(op, gpu.StatusInvalidArg, "not a headless resource")
	}
	if r.isReleased() {
		return nil, gpu.NewStatusError(op, gpu.StatusInvalidArg, "resource used after release")
	}
	return r, nil
}

func (r *Resource) Desc() gpu.ResourceDesc { return r.desc }

// State is the state the resource is in after all executed work.
func (r *Resource) State() gpu.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Bytes returns a copy of the buffer contents as the GPU sees them.
func (r *Resource) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

func (r *Resource) Map() ([]byte, error) {
	if r.isReleased() {
		return nil, gpu.NewStatusError("Map", gpu.StatusInvalidArg, "resource released")
	}
	if r.desc.Heap == gpu.HeapDefault {
		return nil, gpu.NewStatusError("Map", gpu.StatusInvalidArg, "default heap resources are not CPU visible")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapped++
	return r.data, nil
}

func (r *Resource) Unmap() {
	r.mu.Lock()
	if r.mapped > 0 {
		r.mapped--
	}
	r.mu.Unlock()
}

func (r *Resource) markInFlight(d *Device) {
	r.mu.Lock()
	r.inFlight = true
	r.dev = d
	r.mu.Unlock()
}

func (r *Resource) retire(f *Fence, value uint64) {
	r.mu.Lock()
	r.inFlight = false
	r.useFence = f
	r.useValue = value
	r.mu.Unlock()
}

func (r *Resource) Release() {
	r.mu.Lock()
	premature := r.inFlight || (r.useFence != nil && r.useFence.CompletedValue() < r.useValue)
	d := r.dev
	r.mu.Unlock()
	if !r.release() {
		return
	}
	if premature && d != nil {
		d.count(func(s *Stats) { s.PrematureReleases++ })
	}
}

type DescriptorHeap struct {
	object
	kind  gpu.HeapKind
	views []*Resource
}

func (h *DescriptorHeap) Kind() gpu.HeapKind { return h.kind }
func (h *DescriptorHeap) Len() int           { return len(h.views) }

func (h *DescriptorHeap) Handle(i int) gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Heap: h, Index: i}
}

func (h *DescriptorHeap) Release() { h.release() }

func viewOf(op string, handle gpu.DescriptorHandle) (*Resource, error) {
	h, ok := handle.Heap.(*DescriptorHeap)
	if !ok || h.isReleased() || handle.Index < 0 || handle.Index >= len(h.views) {
		return nil, gpu.NewStatusError(op, gpu.StatusInvalidArg, "invalid descriptor handle")
	}
	r := h.views[handle.Index]
	if r == nil {
		return nil, gpu.NewStatusError(op, gpu.StatusInvalidArg, "descriptor has no view")
	}
	return asResource(op, r)
}

type RootSignature struct {
	object
	desc gpu.RootSignatureDesc
}

func (rs *RootSignature) Release() { rs.release() }

type PipelineState struct {
	object
	desc gpu.PipelineDesc
}

func (p *PipelineState) Desc() gpu.PipelineDesc { return p.desc }

func (p *PipelineState) Release() { p.release() }
