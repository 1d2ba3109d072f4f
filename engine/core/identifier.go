package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Releaser is anything owning a native handle that must be freed exactly once.
type Releaser interface {
	Release()
}

type ReleaseFunc func()

func (f ReleaseFunc) Release() { f() }

type tableEntry struct {
	name  string
	owner Releaser
}

// ResourceTable owns every tracked object and releases each of them exactly once.
// ReleaseAll walks the table in reverse acquisition order.
type ResourceTable struct {
	mu      sync.Mutex
	entries map[uuid.UUID]tableEntry
	order   []uuid.UUID
}

func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		entries: make(map[uuid.UUID]tableEntry),
	}
}

// Acquire registers owner under a fresh identifier.
func (rt *ResourceTable) Acquire(name string, owner Releaser) uuid.UUID {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id := uuid.New()
	rt.entries[id] = tableEntry{name: name, owner: owner}
	rt.order = append(rt.order, id)
	return id
}

// Release frees the object behind id. A second call for the same id fails with ErrAlreadyReleased.
func (rt *ResourceTable) Release(id uuid.UUID) error {
	rt.mu.Lock()
	entry, ok := rt.entries[id]
	if !ok {
		rt.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyReleased, id)
	}
	delete(rt.entries, id)
	rt.mu.Unlock()

	LogDebug("releasing %s (%s)", entry.name, id)
	entry.owner.Release()
	return nil
}

// ReleaseAll frees whatever is still live, newest first.
func (rt *ResourceTable) ReleaseAll() int {
	rt.mu.Lock()
	order := rt.order
	rt.order = nil
	rt.mu.Unlock()

	released := 0
	for i := len(order) - 1; i >= 0; i-- {
		if err := rt.Release(order[i]); err == nil {
			released++
		}
	}
	return released
}

// Live returns the number of objects not yet released.
func (rt *ResourceTable) Live() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.entries)
}

// Name returns the label id was acquired with.
func (rt *ResourceTable) Name(id uuid.UUID) (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.entries[id]
	return e.name, ok
}
