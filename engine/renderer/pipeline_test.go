package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu/headless"
)

func newTestBuilder(t *testing.T, opts headless.Options) (*PipelineBuilder, *headless.Factory, *core.ResourceTable) {
	t.Helper()
	f := headless.NewFactory(opts)
	dev, err := CreateDevice(f, gpu.FeatureLevel11_0)
	require.NoError(t, err)
	table := core.NewResourceTable()
	dev.track(table)
	b, err := NewPipelineBuilder(dev, NewSynchronizer(time.Second), table)
	require.NoError(t, err)
	return b, f, table
}

func TestStagingReleaseWaitsForUploadFence(t *testing.T) {
	b, f, table := newTestBuilder(t, headless.Options{})
	fence := b.Fence().(*headless.Fence)
	fence.Hold()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf, err := b.UploadStaticBuffer(data, gpu.StateVertexAndConstantBuffer)
	require.NoError(t, err)
	assert.Equal(t, 1, b.PendingUploads())

	assert.Zero(t, b.ReleaseCompletedUploads())
	assert.Equal(t, 1, b.PendingUploads())
	assert.Equal(t, 2, f.Live()["Resource"], "staging buffer is still alive")

	fence.Resume()
	assert.Equal(t, 1, b.ReleaseCompletedUploads())
	assert.Zero(t, b.PendingUploads())
	assert.Equal(t, 1, f.Live()["Resource"])
	assert.Zero(t, f.Device().Stats().PrematureReleases)

	dst := buf.Resource.(*headless.Resource)
	assert.Equal(t, data, dst.Bytes())
	assert.Equal(t, gpu.StateVertexAndConstantBuffer, dst.State())

	table.ReleaseAll()
	assert.Empty(t, f.Live())
	assert.Zero(t, f.DoubleReleases())
}

func TestSequentialUploadsAreGatedIndependently(t *testing.T) {
	b, f, table := newTestBuilder(t, headless.Options{})
	fence := b.Fence().(*headless.Fence)

	vb, err := b.UploadStaticBuffer(EncodeVertices([]Vertex{{}, {}}), gpu.StateVertexAndConstantBuffer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fence.CompletedValue())

	fence.Hold()
	ib, err := b.UploadStaticBuffer(EncodeIndices([]uint16{0, 1, 2}), gpu.StateIndexBuffer)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, fence.Signals())
	assert.Equal(t, 2, b.PendingUploads())

	assert.Equal(t, 1, b.ReleaseCompletedUploads(), "only the first staging buffer is done")
	assert.Equal(t, 1, b.PendingUploads())
	assert.Equal(t, 3, f.Live()["Resource"])

	fence.Resume()
	assert.Equal(t, 1, b.ReleaseCompletedUploads())
	assert.Zero(t, f.Device().Stats().PrematureReleases)

	assert.Equal(t, gpu.StateVertexAndConstantBuffer, vb.Resource.(*headless.Resource).State())
	assert.Equal(t, gpu.StateIndexBuffer, ib.Resource.(*headless.Resource).State())
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0}, ib.Resource.(*headless.Resource).Bytes())

	require.NoError(t, b.Finish())
	table.ReleaseAll()
	assert.Empty(t, f.Live())
}

func TestUploadRejectsEmptyData(t *testing.T) {
	b, _, table := newTestBuilder(t, headless.Options{})
	defer table.ReleaseAll()

	_, err := b.UploadStaticBuffer(nil, gpu.StateIndexBuffer)
	assert.ErrorIs(t, err, core.ErrResourceUpload)
}

func TestFinishClosesRecordingList(t *testing.T) {
	b, _, table := newTestBuilder(t, headless.Options{})
	defer table.ReleaseAll()

	list := b.List().(*headless.CommandList)
	assert.True(t, list.Recording())
	require.NoError(t, b.Finish())
	assert.False(t, list.Recording())
	assert.Equal(t, uint64(1), b.FenceValue())

	require.NoError(t, b.Finish())
	assert.Equal(t, uint64(1), b.FenceValue(), "nothing left to submit")
}

func TestBuildPipeline(t *testing.T) {
	b, f, table := newTestBuilder(t, headless.Options{})
	defer table.ReleaseAll()

	p, err := b.BuildPipeline([]byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}, InputLayout())
	require.NoError(t, err)
	assert.Equal(t, uint32(VertexStride), p.Stride)

	desc := p.State.(*headless.PipelineState).Desc()
	assert.Equal(t, gpu.CullBack, desc.CullMode)
	assert.Equal(t, gpu.CompareLess, desc.DepthFunc)
	assert.Equal(t, gpu.FormatD32Float, desc.DSVFormat)

	_, err = b.BuildPipeline(nil, []byte{1}, InputLayout())
	assert.ErrorIs(t, err, core.ErrInitialization)
	assert.Equal(t, 1, f.Live()["RootSignature"])
}

func TestCreateTransformBuffers(t *testing.T) {
	b, f, table := newTestBuilder(t, headless.Options{})
	frames, err := CreateFrameResources(b.dev, 3)
	require.NoError(t, err)
	frames.track(table)

	require.NoError(t, b.CreateTransformBuffers(frames))
	for _, slot := range frames.Slots {
		assert.Len(t, slot.TransformMemory, TransformBufferSize)
		assert.Equal(t, gpu.HeapUpload, slot.Transform.Desc().Heap)
		assert.Equal(t, uint64(0), slot.FenceValue)
		assert.Equal(t, uint64(0), slot.Fence.CompletedValue())
	}
	table.ReleaseAll()
	assert.Empty(t, f.Live())
}

func TestFailedUploadSignalKeepsBuffersAlive(t *testing.T) {
	b, f, table := newTestBuilder(t, headless.Options{
		FailSignal: func(n int) bool { return n == 1 },
	})

	_, err := b.UploadStaticBuffer([]byte{1, 2, 3, 4}, gpu.StateVertexAndConstantBuffer)
	require.ErrorIs(t, err, core.ErrResourceUpload)

	// Nothing signaled, so the fence value stays put and a drain does not wait.
	assert.Zero(t, b.FenceValue())
	require.NoError(t, b.WaitIdle())

	assert.Equal(t, 2, b.PendingUploads(), "staging and destination wait for the next signal")
	assert.Equal(t, 2, f.Live()["Resource"])
	assert.Zero(t, b.ReleaseCompletedUploads())

	require.NoError(t, b.dev.Queue.Signal(b.Fence(), 1))
	assert.Equal(t, 2, b.ReleaseCompletedUploads())
	assert.Zero(t, f.Device().Stats().PrematureReleases)

	table.ReleaseAll()
	assert.Empty(t, f.Live())
	assert.Zero(t, f.DoubleReleases())
}
