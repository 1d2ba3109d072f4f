package renderer

import (
	"fmt"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Device is the logical GPU device and its direct command queue.
type Device struct {
	Adapter gpu.Adapter
	Device  gpu.Device
	Queue   gpu.Queue
	Level   gpu.FeatureLevel
}

// CreateDevice opens the first adapter at minLevel and creates a direct queue.
// No adapter selection happens.
func CreateDevice(factory gpu.Factory, minLevel gpu.FeatureLevel) (*Device, error) {
	if minLevel == 0 {
		minLevel = gpu.FeatureLevel11_0
	}
	adapters, err := factory.Adapters()
	if err != nil {
		return nil, core.Fail(core.ErrInitialization, "EnumAdapters", err)
	}
	if len(adapters) == 0 {
		return nil, core.Fail(core.ErrInitialization, "EnumAdapters", gpu.NewStatusError("EnumAdapters", gpu.StatusNotFound, "no adapter"))
	}
	adapter := adapters[0]
	desc := adapter.Description()
	core.LogInfo("video card: %s (%d MB dedicated)", desc.Name, desc.DedicatedVideoMemory>>20)

	d, err := adapter.CreateDevice(minLevel)
	if err != nil {
		return nil, core.Fail(core.ErrDeviceCreation, fmt.Sprintf("CreateDevice(%s)", minLevel), err)
	}
	q, err := d.CreateCommandQueue(gpu.QueueDirect)
	if err != nil {
		d.Release()
		return nil, core.Fail(core.ErrInitialization, "CreateCommandQueue", err)
	}
	core.LogDebug("device created at feature level %s", minLevel)

	return &Device{
		Adapter: adapter,
		Device:  d,
		Queue:   q,
		Level:   minLevel,
	}, nil
}

// track registers the queue and device so they are released last.
func (d *Device) track(rt *core.ResourceTable) {
	rt.Acquire("device", d.Device)
	rt.Acquire("command queue", d.Queue)
}
