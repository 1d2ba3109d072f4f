package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu/headless"
)

func TestMatchRefreshRate(t *testing.T) {
	modes := []gpu.DisplayMode{
		{Width: 1280, Height: 720, RefreshRate: gpu.Rational{Numerator: 59940, Denominator: 1000}},
		{Width: 1920, Height: 1080, RefreshRate: gpu.Rational{Numerator: 60, Denominator: 1}},
		{Width: 1280, Height: 720, RefreshRate: gpu.Rational{Numerator: 60, Denominator: 1}},
	}

	assert.Equal(t, gpu.Rational{Numerator: 60, Denominator: 1}, MatchRefreshRate(modes, 1280, 720, true), "last match wins")
	assert.Equal(t, gpu.Rational{}, MatchRefreshRate(modes, 1024, 768, true), "no match gives 0/0")
	assert.Equal(t, gpu.Rational{}, MatchRefreshRate(nil, 1280, 720, true))
	assert.Equal(t, gpu.Rational{Numerator: 0, Denominator: 1}, MatchRefreshRate(modes, 1280, 720, false))
}

func TestCreateSwapchain(t *testing.T) {
	f := headless.NewFactory(headless.Options{})
	dev, err := CreateDevice(f, gpu.FeatureLevel11_0)
	require.NoError(t, err)

	sc, err := CreateSwapchain(dev, f, SwapchainConfig{Width: 1000, Height: 700, VSync: true, BufferCount: 2})
	require.NoError(t, err)
	assert.Equal(t, gpu.Rational{}, sc.RefreshRate)
	assert.Equal(t, 2, sc.RTVHeap.Len())
	assert.Len(t, sc.BackBuffers, 2)
	assert.Equal(t, uint32(1), sc.SyncInterval())
	assert.Equal(t, gpu.FormatD32Float, sc.Depth.Desc().Format)
	for i := range sc.BackBuffers {
		h := sc.RTV(i)
		assert.Equal(t, i, h.Index, "render target views are contiguous in heap order")
	}

	table := core.NewResourceTable()
	sc.track(table)
	dev.track(table)
	table.ReleaseAll()
	assert.Empty(t, f.Live())
}

func TestCreateSwapchainFailureReleasesPartialState(t *testing.T) {
	f := headless.NewFactory(headless.Options{})
	dev, err := CreateDevice(f, gpu.FeatureLevel11_0)
	require.NoError(t, err)

	_, err = CreateSwapchain(dev, f, SwapchainConfig{Width: 1280, Height: 720, BufferCount: 1})
	assert.ErrorIs(t, err, core.ErrInitialization)
	_, err = CreateSwapchain(dev, f, SwapchainConfig{Width: 0, Height: 720, BufferCount: 3})
	assert.ErrorIs(t, err, core.ErrInitialization)

	live := f.Live()
	assert.Equal(t, map[string]int{"Device": 1, "Queue": 1}, live)
}

func TestCreateDeviceRefused(t *testing.T) {
	f := headless.NewFactory(headless.Options{MaxFeatureLevel: gpu.FeatureLevel11_0})
	_, err := CreateDevice(f, gpu.FeatureLevel12_0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceCreation)
	assert.ErrorIs(t, err, core.ErrInitialization)
	assert.Equal(t, int32(-2005270524), core.StatusOf(err))
}
