// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"
	"slices"

	"github.com/pkg/errors"
)

// Strides of each axis in a row-major layout, counted in elements (not bytes).
// Shapes with a zero dimension have all strides 0.
func (s Shape) Strides() []int {
	rank := s.Rank()
	if rank == 0 {
		return nil
	}
	strides := make([]int, rank)
	if s.IsZeroSize() {
		return strides
	}
	stride := 1
	for axis, dim := range slices.Backward(s.Dimensions) {
		strides[axis] = stride
		stride *= dim
	}
	return strides
}

// Iter yields every flat index of the shape with its per-axis indices, in row-major order.
// The indices slice is reused between iterations and must not be modified.
func (s Shape) Iter() iter.Seq2[int, []int] {
	all := make([]int, s.Rank())
	for axis := range all {
		all[axis] = axis
	}
	return s.IterOnAxes(all, nil, nil)
}

// IterOnAxes is like Iter, but only advances the given axes. The other entries of indices keep their
// value and still contribute to the yielded flat index.
//
// strides and indices may be nil, in which case they are computed or allocated. Otherwise their
// length must match the rank.
func (s Shape) IterOnAxes(axesToIterate, strides, indices []int) iter.Seq2[int, []int] {
	rank := s.Rank()
	if strides == nil {
		strides = s.Strides()
	}
	if indices == nil {
		indices = make([]int, rank)
	}
	if len(strides) != rank || len(indices) != rank {
		panic(errors.Errorf("Shape.IterOnAxes: strides (%d) and indices (%d) must have the length of the rank %d",
			len(strides), len(indices), rank))
	}
	for _, axis := range axesToIterate {
		if axis < 0 || axis >= rank {
			panic(errors.Errorf("Shape.IterOnAxes: axis %d out of range for rank %d", axis, rank))
		}
	}

	return func(yield func(int, []int) bool) {
		if !s.Ok() {
			return
		}
		for _, axis := range axesToIterate {
			if s.Dimensions[axis] == 0 {
				return
			}
			indices[axis] = 0
		}
		flatIdx := 0
		for axis, idx := range indices {
			flatIdx += idx * strides[axis]
		}
		for {
			if !yield(flatIdx, indices) {
				return
			}
			// Odometer increment, last axis first.
			carried := true
			for _, axis := range slices.Backward(axesToIterate) {
				indices[axis]++
				flatIdx += strides[axis]
				if indices[axis] < s.Dimensions[axis] {
					carried = false
					break
				}
				flatIdx -= indices[axis] * strides[axis]
				indices[axis] = 0
			}
			if carried {
				return
			}
		}
	}
}
