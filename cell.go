package rudo

import "sync"

// Cell[T] gives interior mutability for a field embedded in a Traceable
// payload, recording the dirty-card write the generational collector
// needs: the dirty bitmap is set by the write barrier when an
// old-generation slot is mutated to reference a young object.
//
// Set always marks the page dirty when the owner lives in the old
// generation, without checking whether the new value is actually a
// young-generation pointer — coarsening in the safe direction costs an
// extra scan, never a missed root.
type Cell[T any] struct {
	mu    sync.Mutex
	owner uintptr // header address of the GcBox this cell is embedded in
	value T
}

// NewCell creates a cell belonging to owner (the box header address of the
// Traceable value this cell is a field of). Typically called from within
// that value's own construction, e.g. inside a NewCyclicWeak builder.
func NewCell[T any](owner uintptr, value T) *Cell[T] {
	return &Cell[T]{owner: owner, value: value}
}

func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
	markDirty(c.owner)
}
