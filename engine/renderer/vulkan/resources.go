package vulkan

import (
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Resource is a buffer or a 2D image with its memory.
type Resource struct {
	dev    *Device
	desc   gpu.ResourceDesc
	buffer vk.Buffer
	image  vk.Image
	memory vk.DeviceMemory
	format vk.Format

	// Swapchain images belong to the swapchain.
	owned bool
	// Set once a barrier gave the image a defined layout.
	initialized bool

	mapped   []byte
	released atomic.Bool
}

var _ gpu.Resource = (*Resource)(nil)

func memoryFlags(heap gpu.HeapType) vk.MemoryPropertyFlags {
	switch heap {
	case gpu.HeapUpload, gpu.HeapReadback:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

func newBuffer(d *Device, desc gpu.ResourceDesc) (*Resource, error) {
	if desc.Width == 0 {
		return nil, gpu.NewStatusError("CreateResource", gpu.StatusInvalidArg, "empty buffer")
	}
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) |
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) |
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Width),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	r := &Resource{dev: d, desc: desc, owned: true}
	if err := check("vkCreateBuffer", vk.CreateBuffer(d.handle, &bufferInfo, d.ctx.Allocator, &r.buffer)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, r.buffer, &reqs)
	reqs.Deref()
	if err := r.allocate(reqs); err != nil {
		vk.DestroyBuffer(d.handle, r.buffer, d.ctx.Allocator)
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(d.handle, r.buffer, r.memory, 0)); err != nil {
		r.destroy()
		return nil, err
	}
	return r, nil
}

func newImage(d *Device, desc gpu.ResourceDesc) (*Resource, error) {
	var usage vk.ImageUsageFlags
	switch {
	case desc.Flags&gpu.ResourceFlagAllowDepthStencil != 0:
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	case desc.Flags&gpu.ResourceFlagAllowRenderTarget != 0:
		usage = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	default:
		usage = vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}

	r := &Resource{dev: d, desc: desc, owned: true, format: d.colorFormat(desc.Format)}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    r.format,
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(d.handle, &imageInfo, d.ctx.Allocator, &r.image)); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, r.image, &reqs)
	reqs.Deref()
	if err := r.allocate(reqs); err != nil {
		vk.DestroyImage(d.handle, r.image, d.ctx.Allocator)
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(d.handle, r.image, r.memory, 0)); err != nil {
		r.destroy()
		return nil, err
	}
	return r, nil
}

func (r *Resource) allocate(reqs vk.MemoryRequirements) error {
	index := FindMemoryIndex(r.dev.adapter.memory, reqs.MemoryTypeBits, memoryFlags(r.desc.Heap))
	if index < 0 {
		return gpu.NewStatusError("FindMemoryIndex", gpu.StatusOutOfMemory, "no suitable memory type")
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	return check("vkAllocateMemory", vk.AllocateMemory(r.dev.handle, &allocInfo, r.dev.ctx.Allocator, &r.memory))
}

func (r *Resource) Desc() gpu.ResourceDesc {
	return r.desc
}

func (r *Resource) Map() ([]byte, error) {
	if r.desc.Heap == gpu.HeapDefault {
		return nil, gpu.NewStatusError("Map", gpu.StatusInvalidCall, "default heap resources are not CPU visible")
	}
	if r.mapped != nil {
		return r.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(r.dev.handle, r.memory, 0, vk.DeviceSize(r.desc.Width), 0, &ptr)); err != nil {
		return nil, err
	}
	r.mapped = unsafe.Slice((*byte)(ptr), int(r.desc.Width))
	return r.mapped, nil
}

func (r *Resource) Unmap() {
	if r.mapped == nil {
		return
	}
	vk.UnmapMemory(r.dev.handle, r.memory)
	r.mapped = nil
}

func (r *Resource) Release() {
	if !r.released.CompareAndSwap(false, true) || !r.owned {
		return
	}
	r.destroy()
}

func (r *Resource) destroy() {
	r.Unmap()
	if r.buffer != vk.NullBuffer {
		vk.DestroyBuffer(r.dev.handle, r.buffer, r.dev.ctx.Allocator)
		r.buffer = vk.NullBuffer
	}
	if r.image != vk.NullImage {
		vk.DestroyImage(r.dev.handle, r.image, r.dev.ctx.Allocator)
		r.image = vk.NullImage
	}
	if r.memory != vk.NullDeviceMemory {
		vk.FreeMemory(r.dev.handle, r.memory, r.dev.ctx.Allocator)
		r.memory = vk.NullDeviceMemory
	}
}

// DescriptorHeap holds image views for render target and depth stencil descriptors.
type DescriptorHeap struct {
	dev      *Device
	kind     gpu.HeapKind
	views    []vk.ImageView
	targets  []*Resource
	released bool
}

var _ gpu.DescriptorHeap = (*DescriptorHeap)(nil)

func (h *DescriptorHeap) Kind() gpu.HeapKind { return h.kind }
func (h *DescriptorHeap) Len() int           { return len(h.views) }

func (h *DescriptorHeap) Handle(i int) gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Heap: h, Index: i}
}

func (h *DescriptorHeap) set(i int, view vk.ImageView, target *Resource) {
	h.clear(i)
	h.views[i] = view
	h.targets[i] = target
}

func (h *DescriptorHeap) clear(i int) {
	if h.views[i] == vk.NullImageView {
		return
	}
	h.dev.dropFramebuffers(h.views[i])
	vk.DestroyImageView(h.dev.handle, h.views[i], h.dev.ctx.Allocator)
	h.views[i] = vk.NullImageView
	h.targets[i] = nil
}

// lookup resolves a handle to its view and the resource behind it.
func lookup(handle gpu.DescriptorHandle) (vk.ImageView, *Resource, bool) {
	h, ok := handle.Heap.(*DescriptorHeap)
	if !ok || handle.Index < 0 || handle.Index >= len(h.views) || h.views[handle.Index] == vk.NullImageView {
		return vk.NullImageView, nil, false
	}
	return h.views[handle.Index], h.targets[handle.Index], true
}

func (h *DescriptorHeap) Release() {
	if h.released {
		return
	}
	h.released = true
	for i := range h.views {
		h.clear(i)
	}
}
