package renderer

import (
	"fmt"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

const BackBufferFormat = gpu.FormatR8G8B8A8Unorm

type SwapchainConfig struct {
	Width       uint32
	Height      uint32
	Window      gpu.WindowHandle
	Fullscreen  bool
	VSync       bool
	BufferCount int
}

// Swapchain is the back buffer ring with one render target view per buffer
// and a depth buffer shared by all of them.
type Swapchain struct {
	Chain       gpu.Swapchain
	RTVHeap     gpu.DescriptorHeap
	DSVHeap     gpu.DescriptorHeap
	Depth       gpu.Resource
	BackBuffers []gpu.Resource
	RefreshRate gpu.Rational
	OutputName  string
	Width       uint32
	Height      uint32
	VSync       bool
}

// MatchRefreshRate picks the refresh rate for a swapchain of w x h.
// With vsync the last mode of exactly that size wins and no match yields 0/0,
// the platform default timing. Without vsync the rate is 0/1.
func MatchRefreshRate(modes []gpu.DisplayMode, w, h uint32, vsync bool) gpu.Rational {
	if !vsync {
		return gpu.Rational{Numerator: 0, Denominator: 1}
	}
	rate := gpu.Rational{}
	for _, m := range modes {
		if m.Width == w && m.Height == h {
			rate = m.RefreshRate
		}
	}
	return rate
}

// CreateSwapchain builds the back buffers, their render target views and the
// depth buffer. Everything it created is released again if a step fails.
func CreateSwapchain(dev *Device, factory gpu.Factory, cfg SwapchainConfig) (sc *Swapchain, err error) {
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, core.Fail(core.ErrInitialization, "CreateSwapchain",
			gpu.NewStatusError("CreateSwapchain", gpu.StatusInvalidArg, "zero sized window"))
	}
	outputs, err := dev.Adapter.Outputs()
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "EnumOutputs", err)
	}
	if len(outputs) == 0 {
		return nil, core.Fail(core.ErrInitialization, "EnumOutputs",
			gpu.NewStatusError("EnumOutputs", gpu.StatusNotFound, "adapter has no outputs"))
	}
	output := outputs[0]
	modes, err := output.DisplayModes(BackBufferFormat)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "GetDisplayModeList", err)
	}
	rate := MatchRefreshRate(modes, cfg.Width, cfg.Height, cfg.VSync)
	if cfg.VSync && rate.Numerator == 0 && rate.Denominator == 0 {
		core.LogWarn("no display mode matches %dx%d on %s, using default timing", cfg.Width, cfg.Height, output.Name())
	}
	core.LogDebug("output %s: %d modes, refresh rate %s", output.Name(), len(modes), rate)

	var cleanup []core.Releaser
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i].Release()
			}
		}
	}()

	chain, err := factory.CreateSwapchain(dev.Queue, gpu.SwapchainDesc{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      BackBufferFormat,
		BufferCount: cfg.BufferCount,
		Window:      cfg.Window,
		Fullscreen:  cfg.Fullscreen,
		RefreshRate: rate,
		VSync:       cfg.VSync,
	})
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateSwapChain", err)
	}
	cleanup = append(cleanup, chain)

	count := chain.BufferCount()
	rtvHeap, err := dev.Device.CreateDescriptorHeap(gpu.HeapRTV, count)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateDescriptorHeap(RTV)", err)
	}
	cleanup = append(cleanup, rtvHeap)

	buffers := make([]gpu.Resource, count)
	for i := 0; i < count; i++ {
		buf, err := chain.Buffer(i)
		if err != nil {
			return nil, core.Fail(core.ErrInitialization, fmt.Sprintf("GetBuffer(%d)", i), err)
		}
		if err := dev.Device.CreateRenderTargetView(buf, rtvHeap.Handle(i)); err != nil {
			return nil, core.Fail(core.ErrInitialization, fmt.Sprintf("CreateRenderTargetView(%d)", i), err)
		}
		buffers[i] = buf
	}

	depth, err := dev.Device.CreateResource(gpu.ResourceDesc{
		Dimension:    gpu.DimensionTexture2D,
		Width:        uint64(cfg.Width),
		Height:       cfg.Height,
		Format:       gpu.FormatD32Float,
		Heap:         gpu.HeapDefault,
		InitialState: gpu.StateDepthWrite,
		Flags:        gpu.ResourceFlagAllowDepthStencil,
		ClearDepth:   1.0,
	})
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateDepthBuffer", err)
	}
	cleanup = append(cleanup, depth)

	dsvHeap, err := dev.Device.CreateDescriptorHeap(gpu.HeapDSV, 1)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateDescriptorHeap(DSV)", err)
	}
	cleanup = append(cleanup, dsvHeap)
	if err := dev.Device.CreateDepthStencilView(depth, dsvHeap.Handle(0)); err != nil {
		return nil, core.Fail(core.ErrInitialization, "CreateDepthStencilView", err)
	}

	return &Swapchain{
		Chain:       chain,
		RTVHeap:     rtvHeap,
		DSVHeap:     dsvHeap,
		Depth:       depth,
		BackBuffers: buffers,
		RefreshRate: rate,
		OutputName:  output.Name(),
		Width:       cfg.Width,
		Height:      cfg.Height,
		VSync:       cfg.VSync,
	}, nil
}

// SyncInterval is 1 with vsync and 0 otherwise.
func (s *Swapchain) SyncInterval() uint32 {
	if s.VSync {
		return 1
	}
	return 0
}

func (s *Swapchain) RTV(i int) gpu.DescriptorHandle {
	return s.RTVHeap.Handle(i)
}

func (s *Swapchain) DSV() gpu.DescriptorHandle {
	return s.DSVHeap.Handle(0)
}

func (s *Swapchain) track(rt *core.ResourceTable) {
	rt.Acquire("swapchain", s.Chain)
	rt.Acquire("rtv heap", s.RTVHeap)
	rt.Acquire("depth buffer", s.Depth)
	rt.Acquire("dsv heap", s.DSVHeap)
}
