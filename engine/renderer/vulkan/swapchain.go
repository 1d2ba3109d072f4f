package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*VulkanSwapchainSupportInfo, error) {
	info := &VulkanSwapchainSupportInfo{}
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &info.Capabilities)); err != nil {
		return nil, err
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return nil, err
	}
	info.Formats = make([]vk.SurfaceFormat, formatCount)
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, info.Formats)); err != nil {
		return nil, err
	}
	for i := range info.Formats {
		info.Formats[i].Deref()
	}

	var modeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil)); err != nil {
		return nil, err
	}
	info.PresentModes = make([]vk.PresentMode, modeCount)
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, info.PresentModes)); err != nil {
		return nil, err
	}

	if len(info.Formats) == 0 || len(info.PresentModes) == 0 {
		return nil, gpu.NewStatusError("DeviceQuerySwapchainSupport", gpu.StatusUnsupported, "surface has no formats or present modes")
	}
	return info, nil
}

// chooseFormat prefers the requested format, then BGRA8, then whatever the surface lists first.
func chooseFormat(formats []vk.SurfaceFormat, want vk.Format) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode uses FIFO for vsync. Without vsync it takes mailbox, then immediate, then FIFO.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// Swapchain acquires the next image right after creation and after every
// Present, so CurrentBackBufferIndex always names the image to draw into.
type Swapchain struct {
	dev    *Device
	queue  *Queue
	desc   gpu.SwapchainDesc
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D

	buffers []*Resource
	current uint32

	acquireSems []vk.Semaphore
	nextAcquire int
	acquired    vk.Semaphore
	waiting     bool
	renderSems  []vk.Semaphore
	rendered    bool

	released bool
}

var _ gpu.Swapchain = (*Swapchain)(nil)

func newSwapchain(q *Queue, desc gpu.SwapchainDesc) (*Swapchain, error) {
	d := q.dev
	support, err := querySwapchainSupport(d.adapter.physical, d.ctx.Surface)
	if err != nil {
		return nil, err
	}
	caps := support.Capabilities

	sc := &Swapchain{
		dev:    d,
		queue:  q,
		desc:   desc,
		format: chooseFormat(support.Formats, vkFormat(desc.Format)),
		extent: vk.Extent2D{Width: desc.Width, Height: desc.Height},
	}
	presentMode := choosePresentMode(support.PresentModes, desc.VSync)

	if caps.CurrentExtent.Width != math.MaxUint32 {
		sc.extent = caps.CurrentExtent
	}
	sc.extent.Width = core.Clamp(sc.extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	sc.extent.Height = core.Clamp(sc.extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := uint32(desc.BufferCount)
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.format.Format,
		ImageColorSpace:  sc.format.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if d.adapter.graphicsFamily != d.adapter.presentFamily {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.adapter.graphicsFamily, d.adapter.presentFamily}
	}

	if err := check("vkCreateSwapchain", vk.CreateSwapchain(d.handle, &createInfo, d.ctx.Allocator, &sc.handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, nil)); err != nil {
		sc.Release()
		return nil, err
	}
	images := make([]vk.Image, count)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(d.handle, sc.handle, &count, images)); err != nil {
		sc.Release()
		return nil, err
	}

	bufferFormat := desc.Format
	if sc.format.Format != vkFormat(desc.Format) {
		d.substitute(desc.Format, sc.format.Format)
	}
	for _, img := range images {
		sc.buffers = append(sc.buffers, &Resource{
			dev:    d,
			image:  img,
			format: sc.format.Format,
			desc: gpu.ResourceDesc{
				Dimension:    gpu.DimensionTexture2D,
				Width:        uint64(sc.extent.Width),
				Height:       sc.extent.Height,
				Format:       bufferFormat,
				Heap:         gpu.HeapDefault,
				InitialState: gpu.StatePresent,
				Flags:        gpu.ResourceFlagAllowRenderTarget,
			},
		})
	}

	// One more acquire semaphore than images, so the next acquire never reuses one still pending.
	semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for i := 0; i <= len(images); i++ {
		var sem vk.Semaphore
		if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.handle, &semaphoreInfo, d.ctx.Allocator, &sem)); err != nil {
			sc.Release()
			return nil, err
		}
		sc.acquireSems = append(sc.acquireSems, sem)
	}
	for range images {
		var sem vk.Semaphore
		if err := check("vkCreateSemaphore", vk.CreateSemaphore(d.handle, &semaphoreInfo, d.ctx.Allocator, &sem)); err != nil {
			sc.Release()
			return nil, err
		}
		sc.renderSems = append(sc.renderSems, sem)
	}

	if err := sc.acquire(); err != nil {
		sc.Release()
		return nil, err
	}

	core.LogInfo("Swapchain created: %d images of %dx%d, present mode %d.", count, sc.extent.Width, sc.extent.Height, presentMode)
	return sc, nil
}

func (sc *Swapchain) acquire() error {
	sem := sc.acquireSems[sc.nextAcquire]
	sc.nextAcquire = (sc.nextAcquire + 1) % len(sc.acquireSems)

	res := vk.AcquireNextImage(sc.dev.handle, sc.handle, vk.MaxUint64, sem, vk.NullFence, &sc.current)
	if res != vk.Success && res != vk.Suboptimal {
		return check("vkAcquireNextImage", res)
	}
	sc.acquired = sem
	sc.waiting = true
	return nil
}

// takeAcquire hands the pending acquire semaphore to the submission that draws into the image.
func (sc *Swapchain) takeAcquire() (vk.Semaphore, bool) {
	if !sc.waiting {
		return sc.acquired, false
	}
	sc.waiting = false
	return sc.acquired, true
}

func (sc *Swapchain) renderDone() vk.Semaphore {
	sc.rendered = true
	return sc.renderSems[sc.current]
}

func (sc *Swapchain) CurrentBackBufferIndex() int {
	return int(sc.current)
}

func (sc *Swapchain) BufferCount() int {
	return len(sc.buffers)
}

func (sc *Swapchain) Buffer(i int) (gpu.Resource, error) {
	if i < 0 || i >= len(sc.buffers) {
		return nil, gpu.NewStatusError("GetBuffer", gpu.StatusInvalidArg, "back buffer index out of range")
	}
	return sc.buffers[i], nil
}

// Present queues the current image. The present mode was fixed at creation, so syncInterval only matters there.
func (sc *Swapchain) Present(syncInterval uint32) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{sc.current},
	}
	if sc.rendered {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{sc.renderSems[sc.current]}
		sc.rendered = false
	}

	err := sc.dev.ctx.locks.SafeCall(QueueManagement, func() error {
		res := vk.QueuePresent(sc.dev.present, &presentInfo)
		if res == vk.Suboptimal {
			return nil
		}
		return check("vkQueuePresent", res)
	})
	if err != nil {
		return err
	}
	return sc.acquire()
}

func (sc *Swapchain) Release() {
	if sc.released {
		return
	}
	sc.released = true
	sc.dev.waitIdle()

	for _, b := range sc.buffers {
		b.Release()
	}
	for _, sem := range sc.acquireSems {
		vk.DestroySemaphore(sc.dev.handle, sem, sc.dev.ctx.Allocator)
	}
	for _, sem := range sc.renderSems {
		vk.DestroySemaphore(sc.dev.handle, sem, sc.dev.ctx.Allocator)
	}
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.dev.handle, sc.handle, sc.dev.ctx.Allocator)
		sc.handle = vk.NullSwapchain
	}
	if sc.queue != nil && sc.queue.swapchain == sc {
		sc.queue.swapchain = nil
	}
}
