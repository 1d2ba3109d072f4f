package renderer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu/headless"
)

type shaderMap map[string][]byte

func (m shaderMap) LoadShader(name string) ([]byte, error) {
	blob, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("shader %s not found", name)
	}
	return blob, nil
}

func testShaders() shaderMap {
	return shaderMap{
		"cube.vert": {0x03, 0x02, 0x23, 0x07},
		"cube.frag": {0x03, 0x02, 0x23, 0x07},
	}
}

func testConfig() Config {
	return Config{
		Width:        1280,
		Height:       720,
		BufferCount:  3,
		FenceTimeout: 100 * time.Millisecond,
		ClearColor:   [4]float32{0.1, 0.1, 0.2, 1},
	}
}

func newTestRenderer(t *testing.T, opts headless.Options, cfg Config) (*Renderer, *headless.Factory) {
	t.Helper()
	f := headless.NewFactory(opts)
	r := New(f, testShaders(), cfg)
	require.NoError(t, r.Initialize())
	return r, f
}

func TestRenderTenFramesRoundRobin(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{}, testConfig())

	for n := 0; n < 10; n++ {
		before := r.Stats().FenceValues
		i := f.Swapchain().CurrentBackBufferIndex()
		require.NoError(t, r.Render())

		after := r.Stats().FenceValues
		for slot := range before {
			if slot == i {
				assert.Equal(t, before[slot]+1, after[slot], "frame %d slot %d", n, slot)
			} else {
				assert.Equal(t, before[slot], after[slot], "frame %d slot %d", n, slot)
			}
		}
		assert.Equal(t, SlotPresented, r.Frames().Slot(i).State)
	}

	assert.Equal(t, 10, f.Swapchain().Presents())
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, f.Swapchain().PresentedIndices())
	assert.Equal(t, []uint64{4, 3, 3}, r.Stats().FenceValues)
	for _, si := range f.Swapchain().SyncIntervals() {
		assert.Equal(t, uint32(0), si)
	}

	stats := f.Device().Stats()
	assert.Equal(t, 10, stats.Draws)
	assert.Equal(t, 1, stats.MaxRecording)
	assert.Zero(t, stats.ResetWhileRecording)
	assert.Zero(t, stats.UnsafeAllocatorResets)

	require.NoError(t, r.Shutdown())
}

func TestRenderFollowsPlatformIndex(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{BackBufferSequence: []int{1, 0, 2, 2, 1}}, testConfig())
	defer r.Shutdown()

	for n := 0; n < 5; n++ {
		require.NoError(t, r.Render())
	}
	assert.Equal(t, []int{1, 0, 2, 2, 1}, f.Swapchain().PresentedIndices())
	assert.Equal(t, []uint64{1, 2, 2}, r.Stats().FenceValues)
}

func TestVSyncPresentsWithInterval(t *testing.T) {
	cfg := testConfig()
	cfg.VSync = true
	r, f := newTestRenderer(t, headless.Options{}, cfg)
	defer r.Shutdown()

	require.NoError(t, r.Render())
	assert.Equal(t, []uint32{1}, f.Swapchain().SyncIntervals())
	assert.Equal(t, gpu.Rational{Numerator: 144000, Denominator: 1000}, f.Swapchain().Desc().RefreshRate)
}

func TestAllocatorWaitsForSlowGPU(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{FenceDelay: 5 * time.Millisecond}, testConfig())

	for n := 0; n < 9; n++ {
		require.NoError(t, r.Render())
	}
	assert.Greater(t, r.sync.Waits(), 0)

	stats := f.Device().Stats()
	assert.Zero(t, stats.UnsafeAllocatorResets)
	assert.Zero(t, stats.PrematureReleases)
	require.NoError(t, r.Shutdown())
	assert.Empty(t, f.Live())
}

func TestFenceHangIsFatal(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{}, testConfig())
	stuck := r.Frames().Slot(0).Fence.(*headless.Fence)
	stuck.Hold()

	for n := 0; n < 3; n++ {
		require.NoError(t, r.Render())
	}

	start := time.Now()
	err := r.Render()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGPUHang)
	assert.True(t, IsFatal(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, uint64(0x102), uint64(core.StatusOf(err)))

	start = time.Now()
	assert.ErrorIs(t, r.Render(), core.ErrGPUHang, "hang is sticky")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 3, f.Swapchain().Presents())

	stuck.Resume()
	require.NoError(t, r.Shutdown())
	assert.Empty(t, f.Live())
}

func TestPresentFailureIsNotSticky(t *testing.T) {
	opts := headless.Options{FailPresent: func(n int) bool { return n == 2 }}
	r, f := newTestRenderer(t, opts, testConfig())
	defer r.Shutdown()

	require.NoError(t, r.Render())
	err := r.Render()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPresent)
	assert.False(t, IsFatal(err))
	assert.Equal(t, SlotSubmitted, r.Frames().Slot(1).State)

	require.NoError(t, r.Render())
	assert.Equal(t, 2, f.Swapchain().Presents())
	assert.Equal(t, []int{0, 1}, f.Swapchain().PresentedIndices())
	assert.Equal(t, []uint64{1, 2, 0}, r.Stats().FenceValues)
}

func TestSecondRecordingSlotFails(t *testing.T) {
	r, _ := newTestRenderer(t, headless.Options{}, testConfig())
	defer r.Shutdown()

	r.Frames().Slot(2).State = SlotRecording
	err := r.Render()
	assert.ErrorIs(t, err, core.ErrSubmission)
	assert.ErrorIs(t, r.Render(), core.ErrSubmission)
	r.Frames().Slot(2).State = SlotIdle
}

func TestRecordedCommandOrder(t *testing.T) {
	r, _ := newTestRenderer(t, headless.Options{}, testConfig())
	defer r.Shutdown()
	require.NoError(t, r.Render())

	var ops []headless.Op
	for _, c := range r.builder.List().(*headless.CommandList).Commands() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []headless.Op{
		headless.OpSetPipeline,
		headless.OpBarrier,
		headless.OpSetRenderTarget,
		headless.OpClearRTV,
		headless.OpClearDSV,
		headless.OpSetRootSig,
		headless.OpSetViewport,
		headless.OpSetScissor,
		headless.OpSetTopology,
		headless.OpSetVertexBuffer,
		headless.OpSetIndexBuffer,
		headless.OpSetRootCBV,
		headless.OpDrawIndexed,
		headless.OpBarrier,
	}, ops)
}

func TestTransformWrittenPerSlot(t *testing.T) {
	r, _ := newTestRenderer(t, headless.Options{}, testConfig())
	defer r.Shutdown()

	model := mgl32.HomogRotate3DY(0.5)
	r.SetModel(model)
	require.NoError(t, r.Render())

	want := make([]byte, 64)
	encodeMatrix(want, r.Camera().WVP(model))
	assert.Equal(t, want, r.Frames().Slot(0).TransformMemory[:64])
	assert.Len(t, r.Frames().Slot(0).TransformMemory, TransformBufferSize)
	assert.NotEqual(t, want, r.Frames().Slot(1).TransformMemory[:64])
}

func TestShutdownReleasesEverythingOnce(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{}, testConfig())
	for n := 0; n < 5; n++ {
		require.NoError(t, r.Render())
	}
	require.NoError(t, r.Shutdown())
	require.NoError(t, r.Shutdown())

	assert.Empty(t, f.Live())
	assert.Zero(t, f.DoubleReleases())
	assert.Zero(t, f.Device().Stats().PrematureReleases)
	assert.ErrorIs(t, r.Render(), core.ErrInitialization)
}

func TestFailedInitializeReleasesPartialState(t *testing.T) {
	cases := map[string]struct {
		opts    headless.Options
		shaders shaderMap
		kind    error
	}{
		"device refused":  {opts: headless.Options{MaxFeatureLevel: gpu.FeatureLevel11_0}, shaders: testShaders(), kind: core.ErrDeviceCreation},
		"no outputs":      {opts: headless.Options{NoOutputs: true}, shaders: testShaders(), kind: core.ErrInitialization},
		"missing shaders": {shaders: shaderMap{}, kind: core.ErrInitialization},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := headless.NewFactory(tc.opts)
			cfg := testConfig()
			cfg.MinFeatureLevel = gpu.FeatureLevel12_0
			r := New(f, tc.shaders, cfg)

			err := r.Initialize()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.ErrorIs(t, err, core.ErrInitialization)
			assert.Empty(t, f.Live())

			require.NoError(t, r.Shutdown())
			assert.Zero(t, f.DoubleReleases())
		})
	}
}

func TestInitializeUploadsBeforeFirstFrame(t *testing.T) {
	r, f := newTestRenderer(t, headless.Options{}, testConfig())
	defer r.Shutdown()

	assert.False(t, r.builder.List().(*headless.CommandList).Recording())
	assert.Equal(t, uint64(2), r.Stats().UploadFence)
	assert.Equal(t, 2, f.Device().Stats().Copies)

	require.NoError(t, r.Render())
	assert.Zero(t, r.Stats().PendingUploads)
}

func TestWaitForSlotTimeout(t *testing.T) {
	f := headless.NewFactory(headless.Options{})
	dev, err := CreateDevice(f, 0)
	require.NoError(t, err)
	fence, err := dev.Device.CreateFence(0)
	require.NoError(t, err)

	s := NewSynchronizer(20 * time.Millisecond)
	require.NoError(t, s.WaitForSlot(0, fence, 0))
	assert.Zero(t, s.Waits())

	err = s.WaitForSlot(0, fence, 1)
	assert.ErrorIs(t, err, core.ErrGPUHang)
	assert.True(t, errors.Is(err, core.ErrGPUHang))

	time.AfterFunc(5*time.Millisecond, func() { fence.(*headless.Fence).Signal(1) })
	assert.NoError(t, s.WaitForSlot(0, fence, 1))
	assert.Equal(t, DefaultFenceTimeout, NewSynchronizer(0).Timeout)
}
