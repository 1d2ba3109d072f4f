package headless

import (
	"sync"
	"sync/atomic"
)

// tracker counts live objects per kind and releases of already released objects.
type tracker struct {
	mu             sync.Mutex
	live           map[string]int
	doubleReleases int
}

func newTracker() *tracker {
	return &tracker{live: make(map[string]int)}
}

func (t *tracker) add(kind string) {
	t.mu.Lock()
	t.live[kind]++
	t.mu.Unlock()
}

func (t *tracker) remove(kind string) {
	t.mu.Lock()
	t.live[kind]--
	if t.live[kind] == 0 {
		delete(t.live, kind)
	}
	t.mu.Unlock()
}

func (t *tracker) double() {
	t.mu.Lock()
	t.doubleReleases++
	t.mu.Unlock()
}

// object is embedded by every tracked headless object.
type object struct {
	t        *tracker
	kind     string
	released atomic.Bool
}

func (o *object) init(t *tracker, kind string) {
	o.t = t
	o.kind = kind
	t.add(kind)
}

// release reports whether this call was the first one.
func (o *object) release() bool {
	if !o.released.CompareAndSwap(false, true) {
		o.t.double()
		return false
	}
	o.t.remove(o.kind)
	return true
}

func (o *object) isReleased() bool {
	return o.released.Load()
}
