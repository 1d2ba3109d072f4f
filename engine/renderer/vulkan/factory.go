// Package vulkan implements the gpu interfaces on top of goki/vulkan.
//
// Fences are emulated with one binary VkFence per signaled value, command
// allocators are command pools, and a root constant buffer is bound as a
// uniform buffer descriptor set.
package vulkan

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type Options struct {
	AppName    string
	Window     Window
	Validation bool
}

type Factory struct {
	ctx *VulkanContext
}

var _ gpu.Factory = (*Factory)(nil)

// NewFactory creates the instance and the window surface.
func NewFactory(opts Options) (*Factory, error) {
	ctx, err := newContext(opts.AppName, opts.Window, opts.Validation)
	if err != nil {
		return nil, err
	}
	return &Factory{ctx: ctx}, nil
}

// Adapters lists the physical devices able to render and present to the window surface.
func (f *Factory) Adapters() ([]gpu.Adapter, error) {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(f.ctx.Instance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, gpu.NewStatusError("vkEnumeratePhysicalDevices", gpu.StatusNotFound, "no device supports Vulkan")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(f.ctx.Instance, &count, devices)); err != nil {
		return nil, err
	}

	var adapters []gpu.Adapter
	for _, pd := range devices {
		a := newAdapter(f.ctx, pd)
		if a == nil {
			continue
		}
		adapters = append(adapters, a)
	}
	if len(adapters) == 0 {
		return nil, gpu.NewStatusError("SelectPhysicalDevice", gpu.StatusNotFound, "no device meets the requirements")
	}
	return adapters, nil
}

func (f *Factory) CreateSwapchain(queue gpu.Queue, desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	q, ok := queue.(*Queue)
	if !ok {
		return nil, gpu.NewStatusError("CreateSwapchain", gpu.StatusInvalidArg, "queue does not belong to this backend")
	}
	sc, err := newSwapchain(q, desc)
	if err != nil {
		return nil, err
	}
	q.swapchain = sc
	return sc, nil
}

func (f *Factory) Release() {
	f.ctx.destroy()
}

type Adapter struct {
	ctx            *VulkanContext
	physical       vk.PhysicalDevice
	properties     vk.PhysicalDeviceProperties
	memory         vk.PhysicalDeviceMemoryProperties
	graphicsFamily uint32
	presentFamily  uint32
	portability    bool
}

func newAdapter(ctx *VulkanContext, pd vk.PhysicalDevice) *Adapter {
	a := &Adapter{ctx: ctx, physical: pd}
	vk.GetPhysicalDeviceProperties(pd, &a.properties)
	a.properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(pd, &a.memory)
	a.memory.Deref()

	name := cString(a.properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	graphics, present := -1, -1
	for i := range families {
		families[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), ctx.Surface, &supportsPresent)
		isGraphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0

		// Prefer a family that can do both.
		if isGraphics && supportsPresent == vk.True {
			graphics, present = i, i
			break
		}
		if isGraphics && graphics < 0 {
			graphics = i
		}
		if supportsPresent == vk.True && present < 0 {
			present = i
		}
	}
	if graphics < 0 || present < 0 {
		core.LogInfo("Device '%s' has no graphics or present queue, skipping.", name)
		return nil
	}
	a.graphicsFamily = uint32(graphics)
	a.presentFamily = uint32(present)

	var extCount uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, nil) != vk.Success {
		return nil
	}
	extensions := make([]vk.ExtensionProperties, extCount)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, extensions) != vk.Success {
		return nil
	}
	hasSwapchain := false
	for i := range extensions {
		extensions[i].Deref()
		switch cString(extensions[i].ExtensionName[:]) {
		case "VK_KHR_swapchain":
			hasSwapchain = true
		case "VK_KHR_portability_subset":
			a.portability = true
		}
	}
	if !hasSwapchain {
		core.LogInfo("Required extension not found: 'VK_KHR_swapchain', skipping device '%s'.", name)
		return nil
	}
	return a
}

func (a *Adapter) Description() gpu.AdapterDesc {
	desc := gpu.AdapterDesc{
		Name:     cString(a.properties.DeviceName[:]),
		VendorID: a.properties.VendorID,
		DeviceID: a.properties.DeviceID,
	}
	for i := uint32(0); i < a.memory.MemoryHeapCount; i++ {
		a.memory.MemoryHeaps[i].Deref()
		if vk.MemoryHeapFlagBits(a.memory.MemoryHeaps[i].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			desc.DedicatedVideoMemory += uint64(a.memory.MemoryHeaps[i].Size)
		}
	}
	return desc
}

// Outputs lists the connected monitors.
func (a *Adapter) Outputs() ([]gpu.Output, error) {
	monitors := glfw.GetMonitors()
	if len(monitors) == 0 {
		return nil, gpu.NewStatusError("GetMonitors", gpu.StatusNotFound, "no monitor connected")
	}
	outputs := make([]gpu.Output, 0, len(monitors))
	for _, m := range monitors {
		outputs = append(outputs, &Output{monitor: m})
	}
	return outputs, nil
}

// apiVersion is the Vulkan version standing in for a feature level.
func apiVersion(level gpu.FeatureLevel) uint32 {
	switch {
	case level >= gpu.FeatureLevel12_1:
		return vk.MakeVersion(1, 3, 0)
	case level >= gpu.FeatureLevel12_0:
		return vk.MakeVersion(1, 2, 0)
	case level >= gpu.FeatureLevel11_1:
		return vk.MakeVersion(1, 1, 0)
	}
	return vk.MakeVersion(1, 0, 0)
}

func (a *Adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	want := apiVersion(level)
	have := a.properties.ApiVersion
	// Patch versions do not matter.
	if have>>12 < want>>12 {
		return nil, gpu.NewStatusError("CreateDevice", gpu.StatusUnsupported,
			fmt.Sprintf("feature level %s needs Vulkan %s, device has %s", level, versionString(want), versionString(have)))
	}
	return newDevice(a)
}

type Output struct {
	monitor *glfw.Monitor
}

func (o *Output) Name() string {
	return o.monitor.GetName()
}

// DisplayModes reports the monitor video modes with 8 bits per channel for the 8-bit color formats.
func (o *Output) DisplayModes(format gpu.Format) ([]gpu.DisplayMode, error) {
	if format != gpu.FormatR8G8B8A8Unorm && format != gpu.FormatB8G8R8A8Unorm {
		return nil, nil
	}
	var modes []gpu.DisplayMode
	for _, vm := range o.monitor.GetVideoModes() {
		if vm.RedBits != 8 || vm.GreenBits != 8 || vm.BlueBits != 8 {
			continue
		}
		modes = append(modes, gpu.DisplayMode{
			Width:       uint32(vm.Width),
			Height:      uint32(vm.Height),
			Format:      format,
			RefreshRate: gpu.Rational{Numerator: uint32(vm.RefreshRate) * 1000, Denominator: 1000},
		})
	}
	return modes, nil
}

func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", vk.Version(v).Major(), vk.Version(v).Minor(), vk.Version(v).Patch())
}
