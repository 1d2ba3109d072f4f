package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	Headless
)

func ParseRendererType(name string) (RendererType, error) {
	switch name {
	case "vulkan":
		return Vulkan, nil
	case "headless":
		return Headless, nil
	}
	return 0, fmt.Errorf("unknown renderer backend %q", name)
}

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	}
	return fmt.Sprintf("RendererType(%d)", uint8(t))
}

// ShaderSource loads compiled shader bytecode by name.
type ShaderSource interface {
	LoadShader(name string) ([]byte, error)
}

type Config struct {
	Width           uint32
	Height          uint32
	Window          gpu.WindowHandle
	Fullscreen      bool
	VSync           bool
	BufferCount     int
	FenceTimeout    time.Duration
	ClearColor      [4]float32
	MinFeatureLevel gpu.FeatureLevel
	VertexShader    string
	PixelShader     string
}

// Stats is a snapshot of the frame loop.
type Stats struct {
	Frame          uint64
	Presents       uint64
	FenceValues    []uint64
	SlotStates     []SlotState
	PendingUploads int
	UploadFence    uint64
}

// Renderer owns every GPU object of the cube scene.
type Renderer struct {
	factory gpu.Factory
	shaders ShaderSource
	cfg     Config
	table   *core.ResourceTable

	device    *Device
	swapchain *Swapchain
	frames    *FrameResources
	builder   *PipelineBuilder
	pipeline  *Pipeline
	sync      *Synchronizer
	scheduler *Scheduler

	initialized bool
	shutdown    bool
}

func New(factory gpu.Factory, shaders ShaderSource, cfg Config) *Renderer {
	if cfg.BufferCount == 0 {
		cfg.BufferCount = 3
	}
	if cfg.VertexShader == "" {
		cfg.VertexShader = "cube.vert"
	}
	if cfg.PixelShader == "" {
		cfg.PixelShader = "cube.frag"
	}
	return &Renderer{
		factory: factory,
		shaders: shaders,
		cfg:     cfg,
		table:   core.NewResourceTable(),
		sync:    NewSynchronizer(cfg.FenceTimeout),
	}
}

// Initialize creates the device, the swapchain, the frame slots and the
// pipeline, and uploads the cube. On failure everything created so far is
// released.
func (r *Renderer) Initialize() (err error) {
	if r.initialized {
		return nil
	}
	defer func() {
		if err != nil {
			r.abort()
		}
	}()

	if r.device, err = CreateDevice(r.factory, r.cfg.MinFeatureLevel); err != nil {
		return err
	}
	r.device.track(r.table)

	r.swapchain, err = CreateSwapchain(r.device, r.factory, SwapchainConfig{
		Width:       r.cfg.Width,
		Height:      r.cfg.Height,
		Window:      r.cfg.Window,
		Fullscreen:  r.cfg.Fullscreen,
		VSync:       r.cfg.VSync,
		BufferCount: r.cfg.BufferCount,
	})
	if err != nil {
		return err
	}
	r.swapchain.track(r.table)

	if r.frames, err = CreateFrameResources(r.device, r.swapchain.Chain.BufferCount()); err != nil {
		return err
	}
	r.frames.track(r.table)

	if r.builder, err = NewPipelineBuilder(r.device, r.sync, r.table); err != nil {
		return err
	}

	vs, err := r.loadShader(r.cfg.VertexShader)
	if err != nil {
		return err
	}
	ps, err := r.loadShader(r.cfg.PixelShader)
	if err != nil {
		return err
	}
	if r.pipeline, err = r.builder.BuildPipeline(vs, ps, InputLayout()); err != nil {
		return err
	}

	vertices, indices := GenerateCube(1, 1, 1)
	vb, err := r.builder.UploadStaticBuffer(EncodeVertices(vertices), gpu.StateVertexAndConstantBuffer)
	if err != nil {
		return err
	}
	ib, err := r.builder.UploadStaticBuffer(EncodeIndices(indices), gpu.StateIndexBuffer)
	if err != nil {
		return err
	}

	if err = r.builder.CreateTransformBuffers(r.frames); err != nil {
		return err
	}
	if err = r.builder.Finish(); err != nil {
		return err
	}

	r.scheduler = NewScheduler(SchedulerConfig{
		Device:     r.device,
		Swapchain:  r.swapchain,
		Frames:     r.frames,
		List:       r.builder.List(),
		Pipeline:   r.pipeline,
		Scene:      Scene{Vertices: vb, Indices: ib, IndexCount: uint32(len(indices))},
		Sync:       r.sync,
		Uploads:    r.builder,
		Camera:     NewCamera(r.cfg.Width, r.cfg.Height),
		ClearColor: r.cfg.ClearColor,
	})
	r.initialized = true
	core.LogInfo("renderer initialized: %dx%d, %d back buffers, vsync %t, refresh %s",
		r.cfg.Width, r.cfg.Height, r.frames.Len(), r.cfg.VSync, r.swapchain.RefreshRate)
	return nil
}

func (r *Renderer) loadShader(name string) ([]byte, error) {
	if r.shaders == nil {
		return nil, core.Fail(core.ErrInitialization, "LoadShader("+name+")", errors.New("no shader source"))
	}
	blob, err := r.shaders.LoadShader(name)
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "LoadShader("+name+")", err)
	}
	return blob, nil
}

// abort drains submitted uploads and releases whatever Initialize created.
func (r *Renderer) abort() {
	if r.builder != nil {
		if err := r.builder.WaitIdle(); err != nil {
			core.LogError("waiting for uploads: %s", err)
		}
	}
	n := r.table.ReleaseAll()
	core.LogDebug("released %d objects after failed initialization", n)
}

// Render draws one frame.
func (r *Renderer) Render() error {
	if !r.initialized || r.shutdown {
		return core.Fail(core.ErrInitialization, "Render", errors.New("renderer is not initialized"))
	}
	return r.scheduler.Render()
}

// SetModel sets the object transform used from the next frame on.
func (r *Renderer) SetModel(m mgl32.Mat4) {
	if r.scheduler != nil {
		r.scheduler.SetModel(m)
	}
}

func (r *Renderer) Camera() *Camera {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Camera()
}

func (r *Renderer) Stats() Stats {
	s := Stats{}
	if r.scheduler != nil {
		s.Frame = r.scheduler.Frame()
		s.Presents = r.scheduler.Presents()
	}
	if r.frames != nil {
		s.FenceValues = r.frames.FenceValues()
		for _, slot := range r.frames.Slots {
			s.SlotStates = append(s.SlotStates, slot.State)
		}
	}
	if r.builder != nil {
		s.PendingUploads = r.builder.PendingUploads()
		s.UploadFence = r.builder.FenceValue()
	}
	return s
}

// Frames exposes the frame slots.
func (r *Renderer) Frames() *FrameResources { return r.frames }

// Shutdown waits for the GPU to finish every slot and pending upload, then
// releases every object once, newest first.
func (r *Renderer) Shutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true

	var waitErr error
	if r.initialized {
		if err := r.sync.WaitIdle(r.frames); err != nil {
			waitErr = err
		}
		if err := r.builder.WaitIdle(); err != nil && waitErr == nil {
			waitErr = err
		}
		r.builder.ReleaseCompletedUploads()
	}
	n := r.table.ReleaseAll()
	core.LogInfo("renderer shut down, %d objects released", n)
	return waitErr
}
