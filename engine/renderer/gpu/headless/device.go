package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Stats are validation counters collected by a Device.
type Stats struct {
	Executes               int
	Draws                  int
	Copies                 int
	MaxRecording           int
	ResetWhileRecording    int
	UnsafeAllocatorResets  int
	PrematureReleases      int
	ResourcesCreatedByHeap map[gpu.HeapType]int
}

type Device struct {
	object
	f     *Factory
	level gpu.FeatureLevel

	mu        sync.Mutex
	recording int
	stats     Stats
}

func newDevice(f *Factory, level gpu.FeatureLevel) *Device {
	d := &Device{f: f, level: level}
	d.stats.ResourcesCreatedByHeap = make(map[gpu.HeapType]int)
	d.init(f.t, "Device")
	return d
}

func (d *Device) FeatureLevel() gpu.FeatureLevel { return d.level }

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.ResourcesCreatedByHeap = make(map[gpu.HeapType]int, len(d.stats.ResourcesCreatedByHeap))
	for k, v := range d.stats.ResourcesCreatedByHeap {
		s.ResourcesCreatedByHeap[k] = v
	}
	return s
}

func (d *Device) count(fn func(s *Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

func (d *Device) beginRecording() {
	d.mu.Lock()
	d.recording++
	if d.recording > d.stats.MaxRecording {
		d.stats.MaxRecording = d.recording
	}
	d.mu.Unlock()
}

func (d *Device) endRecording() {
	d.mu.Lock()
	d.recording--
	d.mu.Unlock()
}

func (d *Device) alive(op string) error {
	if d.isReleased() {
		return gpu.NewStatusError(op, gpu.StatusDeviceRemoved, "device released")
	}
	return nil
}

func (d *Device) CreateCommandQueue(kind gpu.QueueKind) (gpu.Queue, error) {
	if err := d.alive("CreateCommandQueue"); err != nil {
		return nil, err
	}
	q := &Queue{dev: d, kind: kind}
	q.init(d.f.t, "Queue")
	return q, nil
}

func (d *Device) CreateCommandAllocator(kind gpu.QueueKind) (gpu.CommandAllocator, error) {
	if err := d.alive("CreateCommandAllocator"); err != nil {
		return nil, err
	}
	a := &CommandAllocator{dev: d, kind: kind}
	a.init(d.f.t, "CommandAllocator")
	return a, nil
}

func (d *Device) CreateCommandList(kind gpu.QueueKind, alloc gpu.CommandAllocator, pso gpu.PipelineState) (gpu.CommandList, error) {
	if err := d.alive("CreateCommandList"); err != nil {
		return nil, err
	}
	l := &CommandList{dev: d, kind: kind}
	l.init(d.f.t, "CommandList")
	if err := l.Reset(alloc, pso); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.alive("CreateFence"); err != nil {
		return nil, err
	}
	f := &Fence{completed: initial, delay: d.f.opts.FenceDelay}
	f.init(d.f.t, "Fence")
	return f, nil
}

func (d *Device) CreateDescriptorHeap(kind gpu.HeapKind, count int) (gpu.DescriptorHeap, error) {
	if err := d.alive("CreateDescriptorHeap"); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, gpu.NewStatusError("CreateDescriptorHeap", gpu.StatusInvalidArg, "empty heap")
	}
	h := &DescriptorHeap{kind: kind, views: make([]*Resource, count)}
	h.init(d.f.t, "DescriptorHeap")
	return h, nil
}

func (d *Device) createView(op string, kind gpu.HeapKind, flag gpu.ResourceFlags, res gpu.Resource, handle gpu.DescriptorHandle) error {
	r, err := asResource(op, res)
	if err != nil {
		return err
	}
	h, ok := handle.Heap.(*DescriptorHeap)
	if !ok || h.isReleased() || h.kind != kind {
		return gpu.NewStatusError(op, gpu.StatusInvalidArg, "descriptor handle does not belong to a live heap of the right kind")
	}
	if handle.Index < 0 || handle.Index >= len(h.views) {
		return gpu.NewStatusError(op, gpu.StatusInvalidArg, fmt.Sprintf("descriptor index %d out of range", handle.Index))
	}
	if r.desc.Flags&flag == 0 {
		return gpu.NewStatusError(op, gpu.StatusInvalidArg, "resource does not allow this view")
	}
	h.views[handle.Index] = r
	return nil
}

func (d *Device) CreateRenderTargetView(res gpu.Resource, handle gpu.DescriptorHandle) error {
	return d.createView("CreateRenderTargetView", gpu.HeapRTV, gpu.ResourceFlagAllowRenderTarget, res, handle)
}

func (d *Device) CreateDepthStencilView(res gpu.Resource, handle gpu.DescriptorHandle) error {
	return d.createView("CreateDepthStencilView", gpu.HeapDSV, gpu.ResourceFlagAllowDepthStencil, res, handle)
}

func (d *Device) CreateResource(desc gpu.ResourceDesc) (gpu.Resource, error) {
	if err := d.alive("CreateResource"); err != nil {
		return nil, err
	}
	if desc.Width == 0 {
		return nil, gpu.NewStatusError("CreateResource", gpu.StatusInvalidArg, "zero width")
	}
	if desc.Heap == gpu.HeapUpload && desc.InitialState != gpu.StateGenericRead {
		return nil, gpu.NewStatusError("CreateResource", gpu.StatusInvalidArg, "upload heap resources must start in GENERIC_READ")
	}
	r := &Resource{desc: desc, state: desc.InitialState}
	if desc.Dimension == gpu.DimensionBuffer {
		r.data = make([]byte, desc.Width)
	}
	r.init(d.f.t, "Resource")
	d.count(func(s *Stats) { s.ResourcesCreatedByHeap[desc.Heap]++ })
	return r, nil
}

func (d *Device) CreateRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	if err := d.alive("CreateRootSignature"); err != nil {
		return nil, err
	}
	rs := &RootSignature{desc: desc}
	rs.init(d.f.t, "RootSignature")
	return rs, nil
}

func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	if err := d.alive("CreatePipelineState"); err != nil {
		return nil, err
	}
	rs, ok := desc.RootSignature.(*RootSignature)
	switch {
	case !ok || rs.isReleased():
		return nil, gpu.NewStatusError("CreatePipelineState", gpu.StatusInvalidArg, "missing root signature")
	case len(desc.VS) == 0 || len(desc.PS) == 0:
		return nil, gpu.NewStatusError("CreatePipelineState", gpu.StatusInvalidArg, "missing shader bytecode")
	case len(desc.InputLayout) == 0:
		return nil, gpu.NewStatusError("CreatePipelineState", gpu.StatusInvalidArg, "empty input layout")
	}
	p := &PipelineState{desc: desc}
	p.init(d.f.t, "PipelineState")
	return p, nil
}

func (d *Device) Release() {
	d.release()
}
