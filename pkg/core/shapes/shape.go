// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape: the dtype and dimensions of a tensor flowing through a graph.
//
// A shape of rank 0 is a scalar. `[][]float32{{0, 1, 2}, {3, 4, 5}}` has shape `(Float32)[2 3]`,
// built with `shapes.Make(dtypes.Float32, 2, 3)`.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
)

// Shape of a tensor, or the shape a node's output is expected to have. The zero value is invalid.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make a Shape. It panics on negative dimensions.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	if slices.ContainsFunc(dimensions, func(dim int) bool { return dim < 0 }) {
		exceptions.Panicf("shapes.Make(%s, %v): negative dimension", dtype, dimensions)
	}
	return Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// Scalar shape of T's dtype.
func Scalar[T dtypes.Supported]() Shape { return Shape{DType: dtypes.FromGenericsType[T]()} }

// Invalid returns the zero Shape, for which Ok is false.
func Invalid() Shape { return Shape{} }

func (s Shape) Ok() bool       { return s.DType != dtypes.InvalidDType }
func (s Shape) Rank() int      { return len(s.Dimensions) }
func (s Shape) IsScalar() bool { return s.Ok() && len(s.Dimensions) == 0 }

// axis resolves a possibly negative axis (-1 is the last one), panicking when out of range.
func (s Shape) axis(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("axis %d out-of-bounds for shape %s", axis, s)
	}
	return adjusted
}

// Dim returns the dimension of axis, which may be negative to count from the end.
func (s Shape) Dim(axis int) int { return s.Dimensions[s.axis(axis)] }

// Size is the number of elements: the product of the dimensions, 1 for scalars.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

func (s Shape) IsZeroSize() bool { return slices.Contains(s.Dimensions, 0) }

// Memory in bytes of a dense array of this shape.
func (s Shape) Memory() uintptr { return uintptr(s.DType.SizeForDimensions(s.Dimensions...)) }

// Equal compares dtype and dimensions.
func (s Shape) Equal(other Shape) bool {
	return s.DType == other.DType && s.EqualDimensions(other)
}

// EqualDimensions ignores the dtype.
func (s Shape) EqualDimensions(other Shape) bool { return slices.Equal(s.Dimensions, other.Dimensions) }

// Clone returns a deep copy.
func (s Shape) Clone() Shape { return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)} }

// String formats the shape as "(DType)[d0 d1 ...]", or "(DType)" for scalars.
func (s Shape) String() string {
	if len(s.Dimensions) == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// NormalizeAxes converts negative axes to their positive counterpart, checks they are in range
// and returns them sorted without repetition. It panics for out-of-range axes.
func (s Shape) NormalizeAxes(axes ...int) []int {
	normalized := make([]int, 0, len(axes))
	for _, axis := range axes {
		normalized = append(normalized, s.axis(axis))
	}
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

// Reduce returns the shape resulting from reducing the given axes. With keepDims the reduced axes
// are kept with dimension 1. An empty list of axes reduces all axes.
func (s Shape) Reduce(keepDims bool, axes ...int) Shape {
	reduced := s.NormalizeAxes(axes...)
	if len(axes) == 0 {
		reduced = make([]int, s.Rank())
		for i := range reduced {
			reduced[i] = i
		}
	}
	out := Shape{DType: s.DType}
	for axis, dim := range s.Dimensions {
		if slices.Contains(reduced, axis) {
			if keepDims {
				out.Dimensions = append(out.Dimensions, 1)
			}
			continue
		}
		out.Dimensions = append(out.Dimensions, dim)
	}
	return out
}
