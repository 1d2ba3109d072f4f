// Package headless implements the gpu interfaces on the CPU. Command lists are
// validated and replayed when executed, fences complete immediately or after
// a configurable delay, and every object is counted so tests can check for
// leaks and double releases. It backs the renderer tests and the "headless"
// backend of the engine.
package headless

import (
	"time"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type Options struct {
	AdapterName     string
	VideoMemory     uint64
	MaxFeatureLevel gpu.FeatureLevel

	// DisplayModes of output 0. Nil gives a default list, NoOutputs gives none.
	DisplayModes []gpu.DisplayMode
	NoOutputs    bool

	// BackBufferSequence is the order the swapchain reports back buffer
	// indices in. Empty means round robin.
	BackBufferSequence []int

	// FenceDelay postpones every GPU signal. Zero completes signals at once.
	FenceDelay time.Duration

	// FailPresent is consulted before every present call with its 1-based number.
	FailPresent func(n int) bool

	// FailSignal is consulted before every queue signal with its 1-based
	// number. Executed work stays unsignaled when it returns true.
	FailSignal func(n int) bool
}

func DefaultDisplayModes() []gpu.DisplayMode {
	modes := []gpu.DisplayMode{}
	for _, m := range []struct{ w, h uint32 }{{800, 600}, {1280, 720}, {1920, 1080}} {
		modes = append(modes,
			gpu.DisplayMode{Width: m.w, Height: m.h, Format: gpu.FormatR8G8B8A8Unorm, RefreshRate: gpu.Rational{Numerator: 60000, Denominator: 1000}},
			gpu.DisplayMode{Width: m.w, Height: m.h, Format: gpu.FormatR8G8B8A8Unorm, RefreshRate: gpu.Rational{Numerator: 144000, Denominator: 1000}},
		)
	}
	return modes
}

type Factory struct {
	opts      Options
	t         *tracker
	device    *Device
	swapchain *Swapchain
}

func NewFactory(opts Options) *Factory {
	if opts.AdapterName == "" {
		opts.AdapterName = "Headless Adapter"
	}
	if opts.VideoMemory == 0 {
		opts.VideoMemory = 512 << 20
	}
	if opts.MaxFeatureLevel == 0 {
		opts.MaxFeatureLevel = gpu.FeatureLevel12_1
	}
	if opts.DisplayModes == nil && !opts.NoOutputs {
		opts.DisplayModes = DefaultDisplayModes()
	}
	return &Factory{opts: opts, t: newTracker()}
}

func (f *Factory) Adapters() ([]gpu.Adapter, error) {
	return []gpu.Adapter{&Adapter{f: f}}, nil
}

func (f *Factory) CreateSwapchain(queue gpu.Queue, desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	q, ok := queue.(*Queue)
	if !ok || q.isReleased() {
		return nil, gpu.NewStatusError("CreateSwapchain", gpu.StatusInvalidArg, "queue is not a live headless queue")
	}
	if desc.BufferCount < 2 || desc.BufferCount > 16 {
		return nil, gpu.NewStatusError("CreateSwapchain", gpu.StatusInvalidArg, "buffer count must be in 2..16")
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, gpu.NewStatusError("CreateSwapchain", gpu.StatusInvalidArg, "zero sized swapchain")
	}
	sc := newSwapchain(f, q.dev, desc)
	f.swapchain = sc
	return sc, nil
}

func (f *Factory) Release() {}

// Device returns the last device created through the factory.
func (f *Factory) Device() *Device { return f.device }

// Swapchain returns the last swapchain created through the factory.
func (f *Factory) Swapchain() *Swapchain { return f.swapchain }

// Live returns the number of unreleased objects per kind.
func (f *Factory) Live() map[string]int {
	f.t.mu.Lock()
	defer f.t.mu.Unlock()
	out := make(map[string]int, len(f.t.live))
	for k, v := range f.t.live {
		out[k] = v
	}
	return out
}

// DoubleReleases counts Release calls on objects that were already released.
func (f *Factory) DoubleReleases() int {
	f.t.mu.Lock()
	defer f.t.mu.Unlock()
	return f.t.doubleReleases
}

type Adapter struct {
	f *Factory
}

func (a *Adapter) Description() gpu.AdapterDesc {
	return gpu.AdapterDesc{
		Name:                 a.f.opts.AdapterName,
		VendorID:             0x1414,
		DeviceID:             0x8c,
		DedicatedVideoMemory: a.f.opts.VideoMemory,
	}
}

func (a *Adapter) Outputs() ([]gpu.Output, error) {
	if a.f.opts.NoOutputs {
		return nil, gpu.NewStatusError("EnumOutputs", gpu.StatusNotFound, "adapter has no outputs")
	}
	return []gpu.Output{&Output{modes: a.f.opts.DisplayModes}}, nil
}

func (a *Adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	if level > a.f.opts.MaxFeatureLevel {
		return nil, gpu.NewStatusError("CreateDevice", gpu.StatusUnsupported, "feature level "+level.String()+" not supported")
	}
	d := newDevice(a.f, level)
	a.f.device = d
	return d, nil
}

type Output struct {
	modes []gpu.DisplayMode
}

func (o *Output) Name() string { return `\\.\DISPLAY1` }

func (o *Output) DisplayModes(format gpu.Format) ([]gpu.DisplayMode, error) {
	out := []gpu.DisplayMode{}
	for _, m := range o.modes {
		if m.Format == format {
			out = append(out, m)
		}
	}
	return out, nil
}
