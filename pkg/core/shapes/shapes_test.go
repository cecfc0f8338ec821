// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	assert.True(t, shape0.Ok())
	assert.True(t, shape0.IsScalar())
	assert.Equal(t, 1, shape0.Size())
	assert.Equal(t, uintptr(8), shape0.Memory())
	assert.Equal(t, "(Float64)", shape0.String())

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	assert.Equal(t, 3, shape1.Rank())
	assert.Equal(t, 24, shape1.Size())
	assert.Equal(t, 2, shape1.Dim(-1))
	assert.Equal(t, "(Float32)[4 3 2]", shape1.String())
	assert.True(t, shape1.Equal(shape1.Clone()))
	assert.False(t, shape1.Equal(Make(dtypes.Float64, 4, 3, 2)))
	assert.True(t, shape1.EqualDimensions(Make(dtypes.Float64, 4, 3, 2)))

	require.Panics(t, func() { _ = Make(dtypes.Float32, 2, -1) })
	require.Panics(t, func() { _ = shape1.Dim(3) })
}

func TestShape_Reduce(t *testing.T) {
	shape := Make(dtypes.Float32, 3, 4, 5)
	assert.Equal(t, []int{3, 5}, shape.Reduce(false, 1).Dimensions)
	assert.Equal(t, []int{3, 1, 5}, shape.Reduce(true, -2).Dimensions)
	assert.True(t, shape.Reduce(false).IsScalar())
	assert.Equal(t, []int{0, 2}, shape.NormalizeAxes(2, 0, -1))
	require.Panics(t, func() { _ = shape.Reduce(false, 3) })
}

func TestShape_Strides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Make(dtypes.Float32, 2, 3, 4).Strides())
	require.Equal(t, []int{1}, Make(dtypes.Float32, 5).Strides())
	require.Equal(t, []int{2, 2, 1}, Make(dtypes.Float32, 3, 1, 2).Strides())
}

func TestShape_Iter(t *testing.T) {
	shape := Make(dtypes.Float64, 3, 2)
	var collect [][]int
	counter := 0
	for flatIdx, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
		require.Equal(t, counter, flatIdx)
		counter++
	}
	want := [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}
	require.Equal(t, want, collect)

	// Scalars yield exactly once.
	counter = 0
	for range Make(dtypes.Float32).Iter() {
		counter++
	}
	require.Equal(t, 1, counter)

	// Iterating over the axis 1 only, with axis 0 fixed at 2.
	shape = Make(dtypes.Float32, 3, 4)
	indices := []int{2, 0}
	var flats []int
	for flatIdx := range shape.IterOnAxes([]int{1}, nil, indices) {
		flats = append(flats, flatIdx)
	}
	require.Equal(t, []int{8, 9, 10, 11}, flats)
}
