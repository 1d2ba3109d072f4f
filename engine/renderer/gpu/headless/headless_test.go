package headless

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

func setup(t *testing.T, opts Options) (*Factory, gpu.Device, gpu.Queue) {
	t.Helper()
	f := NewFactory(opts)
	adapters, err := f.Adapters()
	require.NoError(t, err)
	dev, err := adapters[0].CreateDevice(gpu.FeatureLevel11_0)
	require.NoError(t, err)
	q, err := dev.CreateCommandQueue(gpu.QueueDirect)
	require.NoError(t, err)
	return f, dev, q
}

func TestCreateDeviceRefusesFeatureLevel(t *testing.T) {
	f := NewFactory(Options{MaxFeatureLevel: gpu.FeatureLevel11_0})
	adapters, err := f.Adapters()
	require.NoError(t, err)

	_, err = adapters[0].CreateDevice(gpu.FeatureLevel12_0)
	var se *gpu.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gpu.StatusUnsupported, se.Code)
}

func TestFenceHoldAndResume(t *testing.T) {
	_, dev, q := setup(t, Options{})
	gf, err := dev.CreateFence(0)
	require.NoError(t, err)
	f := gf.(*Fence)

	require.NoError(t, q.Signal(f, 1))
	assert.Equal(t, uint64(1), f.CompletedValue())

	f.Hold()
	require.NoError(t, q.Signal(f, 2))
	require.NoError(t, q.Signal(f, 3))
	assert.Equal(t, uint64(1), f.CompletedValue())

	ev := gpu.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(3, ev))
	assert.False(t, ev.Wait(5*time.Millisecond))

	f.Resume()
	assert.True(t, ev.Wait(time.Second))
	assert.Equal(t, uint64(3), f.CompletedValue())
	assert.Equal(t, []uint64{1, 2, 3}, f.Signals())

	f.Signal(2)
	assert.Equal(t, uint64(3), f.CompletedValue(), "fence never moves backwards")
}

func TestFenceDelay(t *testing.T) {
	_, dev, q := setup(t, Options{FenceDelay: 20 * time.Millisecond})
	f, err := dev.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, q.Signal(f, 1))
	assert.Equal(t, uint64(0), f.CompletedValue())

	ev := gpu.NewEvent()
	require.NoError(t, f.SetEventOnCompletion(1, ev))
	assert.True(t, ev.Wait(time.Second))
	assert.Equal(t, uint64(1), f.CompletedValue())
}

func TestCommandListSingleRecording(t *testing.T) {
	f, dev, _ := setup(t, Options{})
	alloc, err := dev.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, err := dev.CreateCommandList(gpu.QueueDirect, alloc, nil)
	require.NoError(t, err)

	assert.Error(t, list.Reset(alloc, nil), "reset while recording")
	require.NoError(t, list.Close())
	assert.Error(t, list.Close(), "close while closed")

	stats := f.Device().Stats()
	assert.Equal(t, 1, stats.ResetWhileRecording)
	assert.Equal(t, 1, stats.MaxRecording)
}

func TestAllocatorResetWaitsForFence(t *testing.T) {
	_, dev, q := setup(t, Options{})
	alloc, err := dev.CreateCommandAllocator(gpu.QueueDirect)
	require.NoError(t, err)
	list, err := dev.CreateCommandList(gpu.QueueDirect, alloc, nil)
	require.NoError(t, err)
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)

	assert.Error(t, alloc.Reset(), "list still recording")
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))
	assert.Error(t, alloc.Reset(), "executed but not signaled")

	fence.(*Fence).Hold()
	require.NoError(t, q.Signal(fence, 1))
	assert.Error(t, alloc.Reset(), "signal not complete")

	fence.(*Fence).Resume()
	assert.NoError(t, alloc.Reset())
}

func TestCopyAndBarrierValidation(t *testing.T) {
	f, dev, q := setup(t, Options{})
	alloc, _ := dev.CreateCommandAllocator(gpu.QueueDirect)
	list, _ := dev.CreateCommandList(gpu.QueueDirect, alloc, nil)
	fence, _ := dev.CreateFence(0)

	dst, err := dev.CreateResource(gpu.ResourceDesc{Width: 4, Heap: gpu.HeapDefault, InitialState: gpu.StateCopyDest})
	require.NoError(t, err)
	src, err := dev.CreateResource(gpu.ResourceDesc{Width: 4, Heap: gpu.HeapUpload, InitialState: gpu.StateGenericRead})
	require.NoError(t, err)
	_, err = dst.Map()
	assert.Error(t, err)

	mem, err := src.Map()
	require.NoError(t, err)
	copy(mem, []byte{1, 2, 3, 4})
	src.Unmap()

	list.CopyBufferRegion(dst, src, 4)
	list.ResourceBarrier(gpu.Barrier{Resource: dst, Before: gpu.StateCopyDest, After: gpu.StateIndexBuffer})
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))
	require.NoError(t, q.Signal(fence, 1))

	assert.Equal(t, []byte{1, 2, 3, 4}, dst.(*Resource).Bytes())
	assert.Equal(t, gpu.StateIndexBuffer, dst.(*Resource).State())

	require.NoError(t, alloc.Reset())
	require.NoError(t, list.Reset(alloc, nil))
	list.ResourceBarrier(gpu.Barrier{Resource: dst, Before: gpu.StateCopyDest, After: gpu.StateIndexBuffer})
	require.NoError(t, list.Close())
	assert.Error(t, q.ExecuteCommandLists(list), "stale before state")

	src.Release()
	src.Release()
	assert.Equal(t, 1, f.DoubleReleases())
	assert.Zero(t, f.Device().Stats().PrematureReleases)
}

func TestPrematureRelease(t *testing.T) {
	f, dev, q := setup(t, Options{})
	alloc, _ := dev.CreateCommandAllocator(gpu.QueueDirect)
	list, _ := dev.CreateCommandList(gpu.QueueDirect, alloc, nil)
	fence, _ := dev.CreateFence(0)
	dst, _ := dev.CreateResource(gpu.ResourceDesc{Width: 4, Heap: gpu.HeapDefault, InitialState: gpu.StateCopyDest})
	src, _ := dev.CreateResource(gpu.ResourceDesc{Width: 4, Heap: gpu.HeapUpload, InitialState: gpu.StateGenericRead})

	list.CopyBufferRegion(dst, src, 4)
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))
	fence.(*Fence).Hold()
	require.NoError(t, q.Signal(fence, 1))

	src.Release()
	assert.Equal(t, 1, f.Device().Stats().PrematureReleases)
}

func TestSwapchainSequenceAndPresentState(t *testing.T) {
	f, dev, q := setup(t, Options{BackBufferSequence: []int{2, 0, 1}})
	sc, err := f.CreateSwapchain(q, gpu.SwapchainDesc{Width: 64, Height: 64, Format: gpu.FormatR8G8B8A8Unorm, BufferCount: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, sc.CurrentBackBufferIndex())
	require.NoError(t, sc.Present(0))
	assert.Equal(t, 0, sc.CurrentBackBufferIndex())

	bb, err := sc.Buffer(0)
	require.NoError(t, err)
	alloc, _ := dev.CreateCommandAllocator(gpu.QueueDirect)
	list, _ := dev.CreateCommandList(gpu.QueueDirect, alloc, nil)
	list.ResourceBarrier(gpu.Barrier{Resource: bb, Before: gpu.StatePresent, After: gpu.StateRenderTarget})
	require.NoError(t, list.Close())
	require.NoError(t, q.ExecuteCommandLists(list))

	assert.Error(t, sc.Present(0), "back buffer left in RENDER_TARGET")
	assert.Equal(t, []int{2}, f.Swapchain().PresentedIndices())

	sc.Release()
	assert.NotContains(t, f.Live(), "BackBuffer")
}

func TestOutputsAndModes(t *testing.T) {
	f := NewFactory(Options{NoOutputs: true})
	adapters, _ := f.Adapters()
	_, err := adapters[0].Outputs()
	assert.Error(t, err)

	f = NewFactory(Options{})
	adapters, _ = f.Adapters()
	outs, err := adapters[0].Outputs()
	require.NoError(t, err)
	modes, err := outs[0].DisplayModes(gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	assert.Len(t, modes, 6)
	modes, err = outs[0].DisplayModes(gpu.FormatB8G8R8A8Unorm)
	require.NoError(t, err)
	assert.Empty(t, modes)
}
