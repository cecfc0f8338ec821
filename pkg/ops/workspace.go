// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// Workspace accounts for the memory allocated by the ops running on one executioner worker.
//
// A limit of 0 means unlimited. Allocations are accounted per node invocation: the executioner calls
// Reset after each node.
type Workspace struct {
	mu          sync.Mutex
	limit       uint64
	used, peak  uint64
	allocations int
}

// NewWorkspace creates a Workspace with the given limit in bytes (0 for unlimited).
func NewWorkspace(limit uint64) *Workspace {
	return &Workspace{limit: limit}
}

// Alloc returns a new zero-initialized tensor of the given shape, accounted in the workspace.
// It returns an OutOfMemory error if the allocation would exceed the limit.
func (w *Workspace) Alloc(shape shapes.Shape) (*tensors.Tensor, error) {
	size := uint64(shape.Memory())
	w.mu.Lock()
	if w.limit > 0 && w.used+size > w.limit {
		used := w.used
		w.mu.Unlock()
		return nil, status.Errorf(status.OutOfMemory, "workspace allocation of %s for %s exceeds limit %s (%s in use)",
			humanize.IBytes(size), shape, humanize.IBytes(w.limit), humanize.IBytes(used))
	}
	w.used += size
	w.peak = max(w.peak, w.used)
	w.allocations++
	w.mu.Unlock()
	return tensors.FromShape(shape), nil
}

// Reset ends the accounting of the current node invocation, and returns the number of bytes it used.
func (w *Workspace) Reset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	used := w.used
	w.used = 0
	return used
}

// Limit returns the workspace limit in bytes, 0 if unlimited.
func (w *Workspace) Limit() uint64 { return w.limit }

// Peak returns the largest number of bytes in use at any point.
func (w *Workspace) Peak() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peak
}

// Allocations returns the total number of allocations served.
func (w *Workspace) Allocations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allocations
}
