package headless

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// Swapchain owns its back buffers. Callers must not release them.
type Swapchain struct {
	object
	f    *Factory
	desc gpu.SwapchainDesc

	mu            sync.Mutex
	buffers       []*Resource
	current       int
	presents      int
	attempts      int
	syncIntervals []uint32
	indices       []int
}

func newSwapchain(f *Factory, d *Device, desc gpu.SwapchainDesc) *Swapchain {
	sc := &Swapchain{f: f, desc: desc}
	for i := 0; i < desc.BufferCount; i++ {
		r := &Resource{
			desc: gpu.ResourceDesc{
				Dimension:    gpu.DimensionTexture2D,
				Width:        uint64(desc.Width),
				Height:       desc.Height,
				Format:       desc.Format,
				Heap:         gpu.HeapDefault,
				InitialState: gpu.StatePresent,
				Flags:        gpu.ResourceFlagAllowRenderTarget,
			},
			state: gpu.StatePresent,
		}
		r.init(f.t, "BackBuffer")
		sc.buffers = append(sc.buffers, r)
	}
	sc.current = sc.sequenceAt(0)
	sc.init(f.t, "Swapchain")
	return sc
}

func (sc *Swapchain) sequenceAt(n int) int {
	seq := sc.f.opts.BackBufferSequence
	if len(seq) == 0 {
		return n % len(sc.buffers)
	}
	return seq[n%len(seq)] % len(sc.buffers)
}

func (sc *Swapchain) Desc() gpu.SwapchainDesc { return sc.desc }

func (sc *Swapchain) CurrentBackBufferIndex() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.current
}

func (sc *Swapchain) BufferCount() int { return len(sc.buffers) }

func (sc *Swapchain) Buffer(i int) (gpu.Resource, error) {
	if i < 0 || i >= len(sc.buffers) {
		return nil, gpu.NewStatusError("GetBuffer", gpu.StatusInvalidArg, fmt.Sprintf("buffer %d out of range", i))
	}
	return sc.buffers[i], nil
}

func (sc *Swapchain) Present(syncInterval uint32) error {
	if sc.isReleased() {
		return gpu.NewStatusError("Present", gpu.StatusInvalidCall, "swapchain released")
	}
	if syncInterval > 4 {
		return gpu.NewStatusError("Present", gpu.StatusInvalidCall, "sync interval must be in 0..4")
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.attempts++
	if fail := sc.f.opts.FailPresent; fail != nil && fail(sc.attempts) {
		return gpu.NewStatusError("Present", gpu.StatusDeviceRemoved, "present rejected")
	}
	if st := sc.buffers[sc.current].State(); st != gpu.StatePresent {
		return gpu.NewStatusError("Present", gpu.StatusInvalidCall, "back buffer is in "+st.String())
	}
	sc.indices = append(sc.indices, sc.current)
	sc.presents++
	sc.syncIntervals = append(sc.syncIntervals, syncInterval)
	sc.current = sc.sequenceAt(sc.presents)
	return nil
}

// Presents is the number of successful presents.
func (sc *Swapchain) Presents() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.presents
}

// PresentedIndices lists the back buffer index of every successful present.
func (sc *Swapchain) PresentedIndices() []int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]int(nil), sc.indices...)
}

func (sc *Swapchain) SyncIntervals() []uint32 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]uint32(nil), sc.syncIntervals...)
}

func (sc *Swapchain) Release() {
	if !sc.release() {
		return
	}
	for _, b := range sc.buffers {
		b.release()
	}
}
