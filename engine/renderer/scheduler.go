package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Scene is the geometry drawn every frame.
type Scene struct {
	Vertices   *Buffer
	Indices    *Buffer
	IndexCount uint32
}

type SchedulerConfig struct {
	Device     *Device
	Swapchain  *Swapchain
	Frames     *FrameResources
	List       gpu.CommandList
	Pipeline   *Pipeline
	Scene      Scene
	Sync       *Synchronizer
	Uploads    *PipelineBuilder
	Camera     *Camera
	ClearColor [4]float32
}

// Scheduler records, submits and presents one frame per Render call.
type Scheduler struct {
	cfg   SchedulerConfig
	model mgl32.Mat4

	frame    uint64
	presents uint64
	fatal    error
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Camera == nil {
		cfg.Camera = NewCamera(cfg.Swapchain.Width, cfg.Swapchain.Height)
	}
	return &Scheduler{cfg: cfg, model: mgl32.Ident4()}
}

func (s *Scheduler) SetModel(m mgl32.Mat4) { s.model = m }

func (s *Scheduler) Camera() *Camera { return s.cfg.Camera }

// Frame is the number of frames submitted.
func (s *Scheduler) Frame() uint64 { return s.frame }

func (s *Scheduler) Presents() uint64 { return s.presents }

// Err returns the error that stopped the scheduler, if any.
func (s *Scheduler) Err() error { return s.fatal }

func (s *Scheduler) fail(kind error, op string, err error) error {
	s.fatal = core.Fail(kind, op, err)
	return s.fatal
}

// Render draws one frame into the back buffer the swapchain reports as
// current. A fence timeout or a failed recording or submission stops the
// scheduler for good; a failed present only fails this frame.
func (s *Scheduler) Render() error {
	if s.fatal != nil {
		return s.fatal
	}
	if s.cfg.Uploads != nil {
		s.cfg.Uploads.ReleaseCompletedUploads()
	}

	i := s.cfg.Swapchain.Chain.CurrentBackBufferIndex()
	if i < 0 || i >= s.cfg.Frames.Len() {
		return s.fail(core.ErrSubmission, "GetCurrentBackBufferIndex",
			gpu.NewStatusError("GetCurrentBackBufferIndex", gpu.StatusInvalidCall, fmt.Sprintf("index %d out of range", i)))
	}
	slot := s.cfg.Frames.Slot(i)

	if err := s.cfg.Sync.WaitForSlot(i, slot.Fence, slot.FenceValue); err != nil {
		s.fatal = err
		return err
	}
	if slot.State != SlotIdle && slot.State != SlotRecording {
		slot.State = SlotIdle
	}
	if r := s.cfg.Frames.recording(); r >= 0 {
		return s.fail(core.ErrSubmission, "Render",
			gpu.NewStatusError("Reset", gpu.StatusInvalidCall, fmt.Sprintf("slot %d is still recording", r)))
	}

	slot.FenceValue++

	if err := slot.Allocator.Reset(); err != nil {
		return s.fail(core.ErrSubmission, fmt.Sprintf("CommandAllocator.Reset(slot %d)", i), err)
	}
	if err := s.cfg.List.Reset(slot.Allocator, s.cfg.Pipeline.State); err != nil {
		return s.fail(core.ErrSubmission, fmt.Sprintf("CommandList.Reset(slot %d)", i), err)
	}
	slot.State = SlotRecording

	// The GPU finished with this slot's transform buffer in the wait above.
	encodeMatrix(slot.TransformMemory, s.cfg.Camera.WVP(s.model))

	s.record(i, slot)
	if err := s.cfg.List.Close(); err != nil {
		return s.fail(core.ErrSubmission, "CommandList.Close", err)
	}

	queue := s.cfg.Device.Queue
	if err := queue.ExecuteCommandLists(s.cfg.List); err != nil {
		return s.fail(core.ErrSubmission, "ExecuteCommandLists", err)
	}
	slot.State = SlotSubmitted
	s.frame++

	if err := queue.Signal(slot.Fence, slot.FenceValue); err != nil {
		return s.fail(core.ErrSubmission, fmt.Sprintf("Signal(slot %d, %d)", i, slot.FenceValue), err)
	}
	slot.Signaled = slot.FenceValue

	if err := s.cfg.Swapchain.Chain.Present(s.cfg.Swapchain.SyncInterval()); err != nil {
		return core.Fail(core.ErrPresent, "Present", err)
	}
	slot.State = SlotPresented
	s.presents++
	return nil
}

func (s *Scheduler) record(i int, slot *FrameSlot) {
	list := s.cfg.List
	sc := s.cfg.Swapchain
	backBuffer := sc.BackBuffers[i]

	list.ResourceBarrier(gpu.Barrier{Resource: backBuffer, Before: gpu.StatePresent, After: gpu.StateRenderTarget})

	rtv, dsv := sc.RTV(i), sc.DSV()
	list.SetRenderTargets(rtv, &dsv)
	list.ClearRenderTargetView(rtv, s.cfg.ClearColor)
	list.ClearDepthStencilView(dsv, 1.0)

	list.SetGraphicsRootSignature(s.cfg.Pipeline.RootSignature)
	list.SetViewport(gpu.Viewport{Width: float32(sc.Width), Height: float32(sc.Height), MinDepth: 0, MaxDepth: 1})
	list.SetScissorRect(gpu.Rect{Right: int32(sc.Width), Bottom: int32(sc.Height)})
	list.SetPrimitiveTopology(gpu.TopologyTriangleList)
	list.SetVertexBuffer(s.cfg.Scene.Vertices.VertexView(s.cfg.Pipeline.Stride))
	list.SetIndexBuffer(s.cfg.Scene.Indices.IndexView(gpu.FormatR16Uint))
	list.SetGraphicsRootConstantBuffer(0, slot.Transform)
	list.DrawIndexedInstanced(s.cfg.Scene.IndexCount, 1)

	list.ResourceBarrier(gpu.Barrier{Resource: backBuffer, Before: gpu.StateRenderTarget, After: gpu.StatePresent})
}

// IsFatal reports whether err stops rendering for good.
func IsFatal(err error) bool {
	return errors.Is(err, core.ErrGPUHang) || errors.Is(err, core.ErrSubmission) || errors.Is(err, core.ErrInitialization)
}
