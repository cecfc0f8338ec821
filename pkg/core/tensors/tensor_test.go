// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, []int{2, 3}, tensor.Shape().Dimensions)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, tensor.Value())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, CopyFlatData[float32](tensor))
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })
	require.Panics(t, func() { _ = CopyFlatData[float64](tensor) })
}

func TestScalars(t *testing.T) {
	tensor := FromScalar(int32(7))
	assert.True(t, tensor.IsScalar())
	assert.Equal(t, int32(7), ToScalar[int32](tensor))
	assert.Equal(t, int32(7), tensor.Value())

	filled := FromScalarAndDimensions(true, 2)
	assert.Equal(t, []bool{true, true}, filled.Value())
	assert.Equal(t, "(Bool)[2]{true, true}", filled.String())
}

func TestCloneAndEqual(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float64{1, 2, 3}, 3)
	clone := tensor.Clone()
	require.True(t, tensor.Equal(clone))
	MutableFlatData(clone, func(flat []float64) { flat[0] = 10 })
	assert.False(t, tensor.Equal(clone))
	assert.Equal(t, 1.0, CopyFlatData[float64](tensor)[0])

	other := FromFlatDataAndDimensions([]float64{1, 2, 3.0001}, 3)
	assert.True(t, tensor.InDelta(other, 1e-3))
	assert.False(t, tensor.InDelta(other, 1e-6))
	assert.False(t, tensor.Equal(FromFlatDataAndDimensions([]float64{1, 2, 3}, 1, 3)))

	reshaped := tensor.Reshape(1, 3)
	assert.Equal(t, [][]float64{{1, 2, 3}}, reshaped.Value())
}

func TestConversions(t *testing.T) {
	half := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)}, 2)
	assert.Equal(t, []float64{1.5, -2}, half.Float64s())

	ints := FromFloat64s(shapes.Make(dtypes.Int64, 3), []float64{1, 2, 3})
	assert.Equal(t, []int64{1, 2, 3}, CopyFlatData[int64](ints))

	raw := FromFlatDataAndDimensions([]int32{1, -1}, 2)
	var data []byte
	raw.ConstBytes(func(b []byte) { data = append(data, b...) })
	require.Len(t, data, 8)
	back, err := FromBytes(raw.Shape(), data)
	require.NoError(t, err)
	assert.True(t, raw.Equal(back))
	_, err = FromBytes(raw.Shape(), data[:4])
	require.Error(t, err)
}
