package vulkan

import (
	"runtime"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type renderPassKey struct {
	color vk.Format
	depth vk.Format
}

type framebufferKey struct {
	pass  vk.RenderPass
	color vk.ImageView
	depth vk.ImageView
}

type Device struct {
	ctx     *VulkanContext
	adapter *Adapter

	handle   vk.Device
	graphics vk.Queue
	present  vk.Queue

	mu           sync.Mutex
	renderPasses map[renderPassKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
	// Swapchain formats that stand in for the requested ones.
	substitutes map[gpu.Format]vk.Format
	released    bool
}

var _ gpu.Device = (*Device)(nil)

func newDevice(a *Adapter) (*Device, error) {
	core.LogInfo("Creating logical device...")

	families := []uint32{a.graphicsFamily}
	if a.presentFamily != a.graphicsFamily {
		families = append(families, a.presentFamily)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{"VK_KHR_swapchain"}
	if a.portability {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}
	if runtime.GOOS != "darwin" && vk.Version(a.properties.ApiVersion).Minor() == 0 {
		// Negative viewport heights are core from 1.1 on.
		extensions = append(extensions, "VK_KHR_maintenance1")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	d := &Device{
		ctx:          a.ctx,
		adapter:      a,
		renderPasses: make(map[renderPassKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
		substitutes:  make(map[gpu.Format]vk.Format),
	}
	if err := check("vkCreateDevice", vk.CreateDevice(a.physical, &deviceCreateInfo, a.ctx.Allocator, &d.handle)); err != nil {
		return nil, err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.handle, a.graphicsFamily, 0, &d.graphics)
	vk.GetDeviceQueue(d.handle, a.presentFamily, 0, &d.present)
	core.LogDebug("Queues obtained: graphics family %d, present family %d", a.graphicsFamily, a.presentFamily)

	if !d.supportsDepthFormat(vk.FormatD32Sfloat) {
		vk.DestroyDevice(d.handle, a.ctx.Allocator)
		return nil, gpu.NewStatusError("DeviceDetectDepthFormat", gpu.StatusUnsupported, "D32 depth attachments are not supported")
	}
	return d, nil
}

func (d *Device) supportsDepthFormat(format vk.Format) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.adapter.physical, format, &properties)
	properties.Deref()
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	return properties.OptimalTilingFeatures&flags == flags || properties.LinearTilingFeatures&flags == flags
}

// colorFormat resolves f to the Vulkan format actually used, honoring swapchain substitutions.
func (d *Device) colorFormat(f gpu.Format) vk.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sub, ok := d.substitutes[f]; ok {
		return sub
	}
	return vkFormat(f)
}

func (d *Device) substitute(f gpu.Format, with vk.Format) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if vkFormat(f) != with {
		core.LogDebug("swapchain uses format %d in place of %d", with, vkFormat(f))
		d.substitutes[f] = with
	}
}

func (d *Device) CreateCommandQueue(kind gpu.QueueKind) (gpu.Queue, error) {
	if kind != gpu.QueueDirect {
		return nil, gpu.NewStatusError("CreateCommandQueue", gpu.StatusUnsupported, "only direct queues are available")
	}
	return &Queue{dev: d, handle: d.graphics}, nil
}

func (d *Device) CreateCommandAllocator(kind gpu.QueueKind) (gpu.CommandAllocator, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.adapter.graphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	alloc := &CommandAllocator{dev: d}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.handle, &poolCreateInfo, d.ctx.Allocator, &alloc.pool)); err != nil {
		return nil, err
	}
	return alloc, nil
}

func (d *Device) CreateCommandList(kind gpu.QueueKind, alloc gpu.CommandAllocator, pso gpu.PipelineState) (gpu.CommandList, error) {
	list := &CommandList{
		dev:     d,
		buffers: make(map[*CommandAllocator]vk.CommandBuffer),
	}
	if err := list.Reset(alloc, pso); err != nil {
		list.Release()
		return nil, err
	}
	return list, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	return newFence(d, initial), nil
}

func (d *Device) CreateDescriptorHeap(kind gpu.HeapKind, count int) (gpu.DescriptorHeap, error) {
	if count <= 0 {
		return nil, gpu.NewStatusError("CreateDescriptorHeap", gpu.StatusInvalidArg, "descriptor count must be positive")
	}
	return &DescriptorHeap{
		dev:     d,
		kind:    kind,
		views:   make([]vk.ImageView, count),
		targets: make([]*Resource, count),
	}, nil
}

func (d *Device) CreateRenderTargetView(res gpu.Resource, handle gpu.DescriptorHandle) error {
	return d.createView("CreateRenderTargetView", res, handle, gpu.HeapRTV, gpu.ResourceFlagAllowRenderTarget,
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
}

func (d *Device) CreateDepthStencilView(res gpu.Resource, handle gpu.DescriptorHandle) error {
	return d.createView("CreateDepthStencilView", res, handle, gpu.HeapDSV, gpu.ResourceFlagAllowDepthStencil,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
}

func (d *Device) createView(op string, res gpu.Resource, handle gpu.DescriptorHandle, kind gpu.HeapKind, flag gpu.ResourceFlags, aspect vk.ImageAspectFlags) error {
	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok || heap.kind != kind || handle.Index < 0 || handle.Index >= len(heap.views) {
		return gpu.NewStatusError(op, gpu.StatusInvalidArg, "bad descriptor handle")
	}
	r, ok := res.(*Resource)
	if !ok || r.image == vk.NullImage || r.desc.Flags&flag == 0 {
		return gpu.NewStatusError(op, gpu.StatusInvalidArg, "resource cannot be bound as this view")
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    r.image,
		ViewType: vk.ImageViewType2d,
		Format:   r.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(d.handle, &viewInfo, d.ctx.Allocator, &view)); err != nil {
		return err
	}
	heap.set(handle.Index, view, r)
	return nil
}

func (d *Device) CreateResource(desc gpu.ResourceDesc) (gpu.Resource, error) {
	switch desc.Dimension {
	case gpu.DimensionBuffer:
		return newBuffer(d, desc)
	case gpu.DimensionTexture2D:
		return newImage(d, desc)
	}
	return nil, gpu.NewStatusError("CreateResource", gpu.StatusInvalidArg, "unknown dimension")
}

func (d *Device) CreateRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	return newRootSignature(d, desc)
}

func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	return newPipelineState(d, desc)
}

// renderPass returns the single subpass pass drawing into one color and an optional depth attachment.
// The color attachment enters and leaves the pass as a color attachment; barriers move it to and from present.
func (d *Device) renderPass(color, depth vk.Format) (vk.RenderPass, error) {
	key := renderPassKey{color: color, depth: depth}
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPasses[key]; ok {
		return rp, nil
	}

	attachments := []vk.AttachmentDescription{{
		Format:         color,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	if depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(d.handle, &createInfo, d.ctx.Allocator, &rp)); err != nil {
		return vk.NullRenderPass, err
	}
	d.renderPasses[key] = rp
	return rp, nil
}

func (d *Device) framebuffer(pass vk.RenderPass, color, depth vk.ImageView, width, height uint32) (vk.Framebuffer, error) {
	key := framebufferKey{pass: pass, color: color, depth: depth}
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.framebuffers[key]; ok {
		return fb, nil
	}

	attachments := []vk.ImageView{color}
	if depth != vk.NullImageView {
		attachments = append(attachments, depth)
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(d.handle, &createInfo, d.ctx.Allocator, &fb)); err != nil {
		return vk.NullFramebuffer, err
	}
	d.framebuffers[key] = fb
	return fb, nil
}

// dropFramebuffers destroys every cached framebuffer using view.
func (d *Device) dropFramebuffers(view vk.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, fb := range d.framebuffers {
		if key.color == view || key.depth == view {
			vk.DestroyFramebuffer(d.handle, fb, d.ctx.Allocator)
			delete(d.framebuffers, key)
		}
	}
}

func (d *Device) waitIdle() {
	if d.handle != nil {
		vk.DeviceWaitIdle(d.handle)
	}
}

func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	d.waitIdle()
	for key, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.handle, fb, d.ctx.Allocator)
		delete(d.framebuffers, key)
	}
	for key, rp := range d.renderPasses {
		vk.DestroyRenderPass(d.handle, rp, d.ctx.Allocator)
		delete(d.renderPasses, key)
	}

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.handle, d.ctx.Allocator)
	d.handle = nil
	d.graphics = nil
	d.present = nil
}
