// Package state holds pool snapshots and the caches that feed them.
package state

import (
	"errors"
	"fmt"

	"zapquote/internal/chain"
)

// ErrNotLoaded is returned when reading a Cell before it was loaded.
var ErrNotLoaded = errors.New("state: not loaded")

// Cell is either unloaded or holds a loaded value.
type Cell[T any] struct {
	value  T
	loaded bool
}

// Loaded returns a loaded cell.
func Loaded[T any](v T) Cell[T] {
	return Cell[T]{value: v, loaded: true}
}

// Set loads v into the cell.
func (c *Cell[T]) Set(v T) {
	c.value = v
	c.loaded = true
}

// Reset unloads the cell.
func (c *Cell[T]) Reset() {
	var zero T
	c.value = zero
	c.loaded = false
}

// IsLoaded reports whether the cell holds a value.
func (c Cell[T]) IsLoaded() bool {
	return c.loaded
}

// Get returns the loaded value or ErrNotLoaded.
func (c Cell[T]) Get() (T, error) {
	if !c.loaded {
		var zero T
		return zero, ErrNotLoaded
	}
	return c.value, nil
}

// Require returns the first failed call that is not optional.
func Require(calls []chain.Call, results []chain.Result) error {
	if len(calls) != len(results) {
		return fmt.Errorf("state: %d results for %d calls", len(results), len(calls))
	}
	for i, r := range results {
		if r.Err != nil && !calls[i].Optional {
			return fmt.Errorf("required call %s on %s: %w", calls[i].Method, calls[i].To.Hex(), r.Err)
		}
	}
	return nil
}
