package viewer

import "github.com/taigrr/avatarview/pkg/mapping"

// Cell is a long-lived mutable slot lent by pointer to lifecycle components.
// Cells belong to the loop goroutine and are not synchronized.
type Cell[T any] struct {
	v T
}

// NewCell creates a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	return c.v
}

// Set replaces the current value.
func (c *Cell[T]) Set(v T) {
	c.v = v
}

// Refs bundles the cross-component cells owned by the Viewer.
type Refs struct {
	// FullyInitialized guards against duplicate initialization.
	FullyInitialized *Cell[bool]
	// ProjectionSessionActive gates live morph updates.
	ProjectionSessionActive *Cell[bool]
	// MorphologyMapping holds the latest mapping table; nil until it arrives.
	MorphologyMapping *Cell[*mapping.Table]
}

// NewRefs returns refs with a live projection session and no mapping.
func NewRefs() *Refs {
	return &Refs{
		FullyInitialized:        NewCell(false),
		ProjectionSessionActive: NewCell(true),
		MorphologyMapping:       NewCell[*mapping.Table](nil),
	}
}
